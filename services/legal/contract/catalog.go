// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contract

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianLease/services/legal/language"
)

// template is one catalog clause in both languages.
type template struct {
	key      string
	category Category
	locked   bool
	titleEN  string
	titleAR  string
	bodyEN   string
	bodyAR   string
}

func (t template) clause(id string, lang language.Language) Clause {
	return Clause{
		ID:       id,
		Title:    lang.Pick(t.titleAR, t.titleEN),
		Body:     lang.Pick(t.bodyAR, t.bodyEN),
		Locked:   t.locked,
		Category: t.category,
	}
}

// =============================================================================
// Standard clauses
// =============================================================================

// headClauses open every contract, tailClauses close it. Extras go between.
var headClauses = []template{
	{
		key: "parties", category: CategoryParties,
		titleEN: "Parties",
		titleAR: "أطراف العقد",
		bodyEN:  "This lease is made between {landlord_name}, national ID {landlord_id} (the \"Landlord\"), and {tenant_name}, national ID {tenant_id} (the \"Tenant\").",
		bodyAR:  "أُبرم هذا العقد بين {landlord_name}، الرقم الوطني {landlord_id} (\"المؤجر\")، و{tenant_name}، الرقم الوطني {tenant_id} (\"المستأجر\").",
	},
	{
		key: "property", category: CategoryProperty,
		titleEN: "Leased Premises",
		titleAR: "المأجور",
		bodyEN:  "The Landlord leases to the Tenant the premises located at {property_address}, {city}, described as {property_description}.",
		bodyAR:  "يؤجر المؤجر للمستأجر العقار الكائن في {property_address}، {city}، وهو {property_description}.",
	},
	{
		key: "purpose", category: CategoryUse,
		titleEN: "Purpose of Use",
		titleAR: "الغاية من الإيجار",
		bodyEN:  "The Tenant shall use the premises only for the purpose stated in this lease and shall not change that purpose without the Landlord's written consent.",
		bodyAR:  "يستعمل المستأجر المأجور للغاية المحددة في هذا العقد فقط، ولا يجوز له تغيير هذه الغاية دون موافقة المؤجر الخطية.",
	},
	{
		key: "term", category: CategoryTerm,
		titleEN: "Lease Term",
		titleAR: "مدة الإيجار",
		bodyEN:  "The lease term begins on {start_date} and ends on {end_date}. Renewal requires the written agreement of both parties.",
		bodyAR:  "تبدأ مدة الإيجار في {start_date} وتنتهي في {end_date}، ويتم التجديد باتفاق خطي بين الطرفين.",
	},
	{
		key: "rent", category: CategoryRent,
		titleEN: "Rent",
		titleAR: "بدل الإيجار",
		bodyEN:  "The rent is {rent_amount} {currency}, payable {payment_frequency}.",
		bodyAR:  "بدل الإيجار {rent_amount} {currency}، يُدفع بشكل {payment_frequency}.",
	},
	{
		key: "payment", category: CategoryPayment,
		titleEN: "Payment Terms",
		titleAR: "طريقة الدفع",
		bodyEN:  "Rent is paid in advance within the first seven days of each period against a written receipt or bank transfer. Late payment entitles the Landlord to the remedies provided under the Owners and Tenants Law.",
		bodyAR:  "يُدفع بدل الإيجار مقدماً خلال الأيام السبعة الأولى من كل فترة مقابل وصل خطي أو حوالة بنكية، ويترتب على التأخير ما نص عليه قانون المالكين والمستأجرين.",
	},
	{
		key: "deposit", category: CategoryDeposit,
		titleEN: "Security Deposit",
		titleAR: "مبلغ التأمين",
		bodyEN:  "The Tenant pays a security deposit of {deposit} {currency}, refundable at the end of the lease after deducting the cost of any damage beyond normal wear.",
		bodyAR:  "يدفع المستأجر مبلغ تأمين قدره {deposit} {currency}، يُعاد عند انتهاء العقد بعد خصم كلفة أي ضرر يتجاوز الاستهلاك العادي.",
	},
	{
		key: "utilities", category: CategoryUtilities,
		titleEN: "Utilities",
		titleAR: "الخدمات",
		bodyEN:  "The Tenant pays for electricity, water, internet and other consumption-based services during the lease term.",
		bodyAR:  "يتحمل المستأجر أثمان الكهرباء والمياه والإنترنت وسائر الخدمات القائمة على الاستهلاك طوال مدة الإيجار.",
	},
	{
		key: "maintenance", category: CategoryMaintenance,
		titleEN: "Maintenance and Repairs",
		titleAR: "الصيانة والإصلاحات",
		bodyEN:  "The Landlord is responsible for structural repairs. The Tenant is responsible for minor repairs arising from ordinary use and shall report any defect promptly.",
		bodyAR:  "يتحمل المؤجر الإصلاحات الإنشائية، ويتحمل المستأجر الإصلاحات البسيطة الناشئة عن الاستعمال العادي وعليه الإبلاغ عن أي خلل فور حدوثه.",
	},
	{
		key: "access", category: CategoryAccess, locked: true,
		titleEN: "Landlord Access",
		titleAR: "دخول المؤجر",
		bodyEN:  "The Landlord may enter the premises for inspection or repairs only after giving the Tenant at least 24 hours' prior notice, except in an emergency that threatens persons or property.",
		bodyAR:  "يحق للمؤجر دخول المأجور للمعاينة أو الإصلاح بعد إشعار المستأجر قبل 24 ساعة على الأقل، إلا في حالات الطوارئ التي تهدد الأشخاص أو الممتلكات.",
	},
}

var tailClauses = []template{
	{
		key: "termination", category: CategoryTermination,
		titleEN: "Breach and Termination",
		titleAR: "الإخلال وإنهاء العقد",
		bodyEN:  "If either party breaches this lease, the other party may terminate it after written notice of thirty days. Eviction of the Tenant may only take place through the competent court.",
		bodyAR:  "إذا أخل أحد الطرفين بالتزاماته جاز للطرف الآخر إنهاء العقد بعد إنذار خطي مدته ثلاثون يوماً، ولا يتم إخلاء المستأجر إلا عن طريق المحكمة المختصة.",
	},
	{
		key: "governing_law", category: CategoryGoverningLaw, locked: true,
		titleEN: "Governing Law and Disputes",
		titleAR: "القانون الواجب التطبيق وتسوية النزاعات",
		bodyEN:  "This lease is governed by the Owners and Tenants Law of the Hashemite Kingdom of Jordan. The courts of {city} have jurisdiction over any dispute.",
		bodyAR:  "يخضع هذا العقد لقانون المالكين والمستأجرين الأردني، وتختص محاكم {city} بالنظر في أي نزاع ينشأ عنه.",
	},
}

// =============================================================================
// Type and context extras
// =============================================================================

var (
	clauseSubletting = template{
		key: "subletting", category: CategorySubletting,
		titleEN: "Subletting",
		titleAR: "التأجير من الباطن",
		bodyEN:  "The Tenant may not sublet or assign the premises in whole or in part without the Landlord's written consent.",
		bodyAR:  "لا يجوز للمستأجر تأجير المأجور من الباطن أو التنازل عنه كلياً أو جزئياً دون موافقة المؤجر الخطية.",
	}
	clauseAlterations = template{
		key: "alterations", category: CategoryAlterations,
		titleEN: "Alterations",
		titleAR: "التعديلات",
		bodyEN:  "The Tenant may not make structural alterations to the premises without the Landlord's written consent.",
		bodyAR:  "لا يجوز للمستأجر إجراء أي تعديلات إنشائية في المأجور دون موافقة المؤجر الخطية.",
	}
	clauseNotices = template{
		key: "notices", category: CategoryNotices,
		titleEN: "Notices",
		titleAR: "الإشعارات",
		bodyEN:  "Notices under this lease are given in writing to the addresses stated in it or by any documented electronic means agreed by the parties.",
		bodyAR:  "توجه الإشعارات بموجب هذا العقد خطياً إلى العناوين المذكورة فيه أو بأي وسيلة إلكترونية موثقة يتفق عليها الطرفان.",
	}
	clauseInsurance = template{
		key: "insurance", category: CategoryInsurance,
		titleEN: "Insurance",
		titleAR: "التأمين على المأجور",
		bodyEN:  "The Landlord insures the building. The Tenant insures its own contents and business activity.",
		bodyAR:  "يؤمن المؤجر على البناء، ويؤمن المستأجر على محتوياته ونشاطه الخاص.",
	}
)

var typeExtras = map[Type][]template{
	TypeResidential: {clauseSubletting, clauseAlterations, clauseNotices},
	TypeFurnished: {
		{
			key: "inventory", category: CategoryFurnishing,
			titleEN: "Furniture Inventory",
			titleAR: "قائمة الأثاث",
			bodyEN:  "The furniture and appliances listed in the inventory signed by both parties form part of the premises.",
			bodyAR:  "يعتبر الأثاث والأجهزة المدرجة في القائمة الموقعة من الطرفين جزءاً من المأجور.",
		},
		{
			key: "furnishing_condition", category: CategoryFurnishing,
			titleEN: "Condition of Furnishings",
			titleAR: "حالة الأثاث",
			bodyEN:  "The Tenant received the furnishings in good condition and shall return them in the same condition, fair wear excepted.",
			bodyAR:  "استلم المستأجر الأثاث بحالة جيدة ويلتزم بإعادته بالحالة ذاتها باستثناء الاستهلاك العادي.",
		},
		{
			key: "furnishing_damage", category: CategoryFurnishing,
			titleEN: "Damage to Furnishings",
			titleAR: "الأضرار في الأثاث",
			bodyEN:  "The Tenant bears the cost of repairing or replacing furnishings damaged through misuse.",
			bodyAR:  "يتحمل المستأجر كلفة إصلاح أو استبدال ما يتلف من الأثاث بسبب سوء الاستعمال.",
		},
		clauseSubletting,
		clauseNotices,
	},
	TypeCommercial: {
		{
			key: "licences", category: CategoryCommercial,
			titleEN: "Licences",
			titleAR: "الرخص",
			bodyEN:  "The Tenant obtains, at its own cost, all professional and municipal licences required for its activity.",
			bodyAR:  "يلتزم المستأجر باستصدار جميع الرخص المهنية والبلدية اللازمة لنشاطه على نفقته.",
		},
		{
			key: "signage", category: CategoryCommercial,
			titleEN: "Signage",
			titleAR: "اللافتات",
			bodyEN:  "The Tenant may install signage on the premises in accordance with municipal regulations.",
			bodyAR:  "يحق للمستأجر تركيب اللافتات على المأجور وفق أنظمة البلدية.",
		},
		clauseAlterations,
		clauseInsurance,
	},
	TypeOffice: {
		{
			key: "office_use", category: CategoryCommercial,
			titleEN: "Office Use",
			titleAR: "الاستعمال المكتبي",
			bodyEN:  "The premises are used as offices only and may not be used for residence or storage of hazardous materials.",
			bodyAR:  "يستعمل المأجور كمكاتب فقط ولا يجوز استعماله للسكن أو لتخزين المواد الخطرة.",
		},
		{
			key: "common_areas", category: CategorySharedAreas,
			titleEN: "Common Areas and Hours",
			titleAR: "المرافق المشتركة وأوقات العمل",
			bodyEN:  "The Tenant may use the building's common areas during the building's operating hours.",
			bodyAR:  "يحق للمستأجر استعمال المرافق المشتركة في البناء خلال ساعات تشغيل البناء.",
		},
		clauseAlterations,
		clauseInsurance,
	},
	TypeStudent: {
		{
			key: "academic_term", category: CategoryTerm,
			titleEN: "Academic Period",
			titleAR: "الفترة الدراسية",
			bodyEN:  "The lease may be aligned with the academic semesters stated by the parties.",
			bodyAR:  "يجوز ربط مدة الإيجار بالفصول الدراسية التي يحددها الطرفان.",
		},
		{
			key: "guarantor", category: CategoryPayment,
			titleEN: "Guarantor",
			titleAR: "الكفيل",
			bodyEN:  "A guarantor named by the Tenant is jointly responsible for the payment of rent.",
			bodyAR:  "يكون الكفيل الذي يسميه المستأجر مسؤولاً بالتضامن عن دفع بدل الإيجار.",
		},
		{
			key: "occupancy", category: CategoryOccupancy,
			titleEN: "Occupancy Limit",
			titleAR: "عدد الشاغلين",
			bodyEN:  "The number of occupants may not exceed the number agreed in this lease.",
			bodyAR:  "لا يجوز أن يتجاوز عدد الشاغلين العدد المتفق عليه في هذا العقد.",
		},
		{
			key: "house_rules", category: CategoryOccupancy,
			titleEN: "House Rules",
			titleAR: "قواعد السكن",
			bodyEN:  "Occupants shall respect the building's rules on quiet hours and visitors.",
			bodyAR:  "يلتزم الشاغلون بقواعد البناء المتعلقة بأوقات الهدوء والزوار.",
		},
	},
	TypeOther: {clauseNotices, clauseSubletting},
}

var contextExtras = map[string][]template{
	"parking": {
		{
			key: "parking_space", category: CategoryParking,
			titleEN: "Parking Space",
			titleAR: "موقف السيارة",
			bodyEN:  "The lease includes the use of one designated parking space.",
			bodyAR:  "يشمل الإيجار استعمال موقف سيارة واحد مخصص.",
		},
		{
			key: "parking_rules", category: CategoryParking,
			titleEN: "Parking Rules",
			titleAR: "قواعد الموقف",
			bodyEN:  "The Tenant keeps the parking space clear and uses it for private vehicles only.",
			bodyAR:  "يحافظ المستأجر على الموقف ويستعمله لسيارات خاصة فقط.",
		},
	},
	"pets": {
		{
			key: "pets_permission", category: CategoryPets,
			titleEN: "Pets",
			titleAR: "الحيوانات الأليفة",
			bodyEN:  "Pets are allowed with the Landlord's written consent.",
			bodyAR:  "يسمح باقتناء الحيوانات الأليفة بموافقة المؤجر الخطية.",
		},
		{
			key: "pets_damage", category: CategoryPets,
			titleEN: "Damage by Pets",
			titleAR: "الأضرار الناتجة عن الحيوانات",
			bodyEN:  "The Tenant bears any damage caused by pets.",
			bodyAR:  "يتحمل المستأجر أي ضرر تسببه الحيوانات الأليفة.",
		},
	},
	"garden": {
		{
			key: "garden_use", category: CategoryGarden,
			titleEN: "Garden",
			titleAR: "الحديقة",
			bodyEN:  "The Tenant may use the garden and keeps it clean and watered.",
			bodyAR:  "يحق للمستأجر استعمال الحديقة ويلتزم بنظافتها وريّها.",
		},
	},
	"shared": {
		{
			key: "shared_areas", category: CategorySharedAreas,
			titleEN: "Shared Areas",
			titleAR: "الأجزاء المشتركة",
			bodyEN:  "Shared areas are used in a way that does not disturb other occupants.",
			bodyAR:  "تستعمل الأجزاء المشتركة بما لا يزعج الشاغلين الآخرين.",
		},
		{
			key: "shared_costs", category: CategorySharedAreas,
			titleEN: "Shared Costs",
			titleAR: "النفقات المشتركة",
			bodyEN:  "The Tenant contributes to the costs of shared services in proportion to the premises.",
			bodyAR:  "يساهم المستأجر في نفقات الخدمات المشتركة بنسبة المأجور.",
		},
	},
	"short_term": {
		{
			key: "short_term_checkout", category: CategoryShortTerm,
			titleEN: "Check-out",
			titleAR: "موعد المغادرة",
			bodyEN:  "The Tenant vacates the premises by noon on the last day of the term.",
			bodyAR:  "يخلي المستأجر المأجور قبل الظهر من آخر يوم في المدة.",
		},
	},
	"furnished":  typeExtras[TypeFurnished][:3],
	"commercial": typeExtras[TypeCommercial][:2],
	"office":     typeExtras[TypeOffice][:2],
	"students":   typeExtras[TypeStudent][2:],
}

// contextKeywords maps context tags to request keywords in both languages.
var contextKeywords = map[string][]string{
	"furnished":  {"furnished", "furniture", "مفروش", "مفروشة", "أثاث", "اثاث"},
	"commercial": {"commercial", "shop", "store", "تجاري", "تجارية", "محل"},
	"office":     {"office", "مكتب", "مكتبي"},
	"students":   {"student", "students", "university", "طالب", "طلاب", "جامعة"},
	"parking":    {"parking", "garage", "موقف", "كراج", "مواقف"},
	"pets":       {"pet", "pets", "dog", "cat", "حيوان", "حيوانات", "كلب", "قطة"},
	"garden":     {"garden", "yard", "حديقة", "حديقه"},
	"shared":     {"shared", "roommate", "مشترك", "مشتركة", "سكن مشترك"},
	"short_term": {"short term", "short-term", "daily", "weekly", "يومي", "أسبوعي", "اسبوعي", "قصير"},
}

// DetectContexts returns the context tags mentioned in text, sorted.
func DetectContexts(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for tag, words := range contextKeywords {
		for _, w := range words {
			if containsKeyword(lower, w, false) {
				out = append(out, tag)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// KnownContext reports whether tag is a supported context.
func KnownContext(tag string) bool {
	_, ok := contextExtras[tag]
	return ok
}

// BuildClauses selects and numbers the clauses of a fresh contract.
//
// # Description
//
// Head clauses come first, then type extras, then context extras, then the
// closing clauses. Duplicate keys are skipped. Extras are truncated so the
// total stays within [MinClauses, MaxClauses]; the head and tail alone meet
// the minimum.
func BuildClauses(t Type, contexts []string, lang language.Language) []Clause {
	seen := map[string]bool{}
	var extras []template
	add := func(ts []template) {
		for _, tpl := range ts {
			if seen[tpl.key] {
				continue
			}
			seen[tpl.key] = true
			extras = append(extras, tpl)
		}
	}
	for _, tpl := range headClauses {
		seen[tpl.key] = true
	}
	for _, tpl := range tailClauses {
		seen[tpl.key] = true
	}

	add(typeExtras[t])
	for _, c := range SortedContexts(contexts) {
		add(contextExtras[c])
	}

	room := MaxClauses - len(headClauses) - len(tailClauses)
	if len(extras) > room {
		extras = extras[:room]
	}

	all := make([]template, 0, len(headClauses)+len(extras)+len(tailClauses))
	all = append(all, headClauses...)
	all = append(all, extras...)
	all = append(all, tailClauses...)

	clauses := make([]Clause, len(all))
	for i, tpl := range all {
		clauses[i] = tpl.clause(strconv.Itoa(i+1), lang)
	}
	return clauses
}

// RequiredCategories lists the categories a complete lease of type t must
// contain. Used by review.
func RequiredCategories(t Type) []Category {
	req := []Category{
		CategoryParties, CategoryProperty, CategoryTerm, CategoryRent, CategoryPayment,
		CategoryDeposit, CategoryMaintenance, CategoryAccess, CategoryTermination, CategoryGoverningLaw,
	}
	switch t {
	case TypeFurnished:
		req = append(req, CategoryFurnishing)
	case TypeCommercial, TypeOffice:
		req = append(req, CategoryCommercial, CategoryInsurance)
	case TypeStudent:
		req = append(req, CategoryOccupancy)
	}
	return req
}

var categoryKeywords = []struct {
	cat   Category
	words []string
}{
	{CategoryRent, []string{"rent", "إيجار", "ايجار", "أجرة"}},
	{CategoryPayment, []string{"payment", "pay", "دفع", "سداد"}},
	{CategoryDeposit, []string{"deposit", "تأمين", "تامين"}},
	{CategoryMaintenance, []string{"maintenance", "repair", "صيانة", "إصلاح", "اصلاح"}},
	{CategoryAccess, []string{"entry", "enter", "access", "دخول"}},
	{CategoryTermination, []string{"terminat", "evict", "إنهاء", "انهاء", "إخلاء", "اخلاء"}},
	{CategoryUtilities, []string{"utilit", "electric", "water", "كهرباء", "مياه"}},
	{CategorySubletting, []string{"sublet", "باطن"}},
	{CategoryParking, []string{"parking", "موقف"}},
	{CategoryPets, []string{"pet", "حيوان"}},
	{CategoryFurnishing, []string{"furnit", "أثاث", "اثاث"}},
	{CategoryInsurance, []string{"insur"}},
	{CategoryNotices, []string{"notice", "إشعار", "اشعار"}},
}

// InferCategory tags a user-supplied clause by keyword, defaulting to
// CategoryGeneral.
func InferCategory(text string) Category {
	lower := strings.ToLower(text)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if containsKeyword(lower, w, true) {
				return ck.cat
			}
		}
	}
	return CategoryGeneral
}

// containsKeyword matches Latin keywords on word boundaries so "pet" does
// not fire on "competent". With stem set, only the leading boundary is
// required. Arabic keywords match anywhere because of attached prefixes
// such as the definite article.
func containsKeyword(lower, w string, stem bool) bool {
	if w == "" {
		return false
	}
	if r, _ := utf8.DecodeRuneInString(w); r >= utf8.RuneSelf {
		return strings.Contains(lower, w)
	}
	for from := 0; ; {
		i := strings.Index(lower[from:], w)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(w)
		if !letterBefore(lower, i) && (stem || !letterAt(lower, end)) {
			return true
		}
		from = i + 1
	}
}

func letterBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r)
}

func letterAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r)
}
