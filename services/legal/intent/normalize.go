// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianLease/services/legal/contract"
)

var fieldAliases = map[string]contract.FieldName{
	"landlord": contract.FieldLandlordName, "owner": contract.FieldLandlordName, "landlord name": contract.FieldLandlordName,
	"المؤجر": contract.FieldLandlordName, "المالك": contract.FieldLandlordName, "اسم المؤجر": contract.FieldLandlordName,
	"landlord id": contract.FieldLandlordID, "landlord national id": contract.FieldLandlordID, "رقم المؤجر": contract.FieldLandlordID,
	"الرقم الوطني للمؤجر": contract.FieldLandlordID,
	"tenant": contract.FieldTenantName, "tenant name": contract.FieldTenantName, "renter": contract.FieldTenantName,
	"المستأجر": contract.FieldTenantName, "اسم المستأجر": contract.FieldTenantName,
	"tenant id": contract.FieldTenantID, "tenant national id": contract.FieldTenantID, "رقم المستأجر": contract.FieldTenantID,
	"الرقم الوطني للمستأجر": contract.FieldTenantID,
	"address": contract.FieldPropertyAddress, "property address": contract.FieldPropertyAddress,
	"العنوان": contract.FieldPropertyAddress, "عنوان العقار": contract.FieldPropertyAddress,
	"description": contract.FieldPropertyDescription, "property": contract.FieldPropertyDescription,
	"وصف العقار": contract.FieldPropertyDescription,
	"city": contract.FieldCity, "المدينة": contract.FieldCity,
	"rent": contract.FieldRentAmount, "monthly rent": contract.FieldRentAmount, "rent amount": contract.FieldRentAmount,
	"الإيجار": contract.FieldRentAmount, "الايجار": contract.FieldRentAmount, "الأجرة": contract.FieldRentAmount,
	"بدل الإيجار": contract.FieldRentAmount, "بدل الايجار": contract.FieldRentAmount, "قيمة الإيجار": contract.FieldRentAmount,
	"currency": contract.FieldCurrency, "العملة": contract.FieldCurrency,
	"frequency": contract.FieldPaymentFrequency, "payment frequency": contract.FieldPaymentFrequency,
	"دورية الدفع": contract.FieldPaymentFrequency, "طريقة الدفع": contract.FieldPaymentFrequency,
	"deposit": contract.FieldDeposit, "security deposit": contract.FieldDeposit,
	"التأمين": contract.FieldDeposit, "مبلغ التأمين": contract.FieldDeposit, "التامين": contract.FieldDeposit,
	"start": contract.FieldStartDate, "start date": contract.FieldStartDate, "commencement": contract.FieldStartDate,
	"تاريخ البدء": contract.FieldStartDate, "تاريخ البداية": contract.FieldStartDate,
	"end": contract.FieldEndDate, "end date": contract.FieldEndDate, "expiry": contract.FieldEndDate,
	"تاريخ الانتهاء": contract.FieldEndDate, "تاريخ النهاية": contract.FieldEndDate,
}

// CanonicalField maps a field name or alias to its canonical FieldName. An
// unknown name is returned as-is so the manager can reject it as an unknown
// target.
func CanonicalField(raw string) contract.FieldName {
	key := strings.ToLower(strings.TrimSpace(raw))
	if f := contract.FieldName(key); f.Valid() {
		return f
	}
	if f, ok := fieldAliases[key]; ok {
		return f
	}
	if f, ok := fieldAliases[strings.ReplaceAll(key, "_", " ")]; ok {
		return f
	}
	return contract.FieldName(key)
}

var clauseRefPattern = regexp.MustCompile(`(?i)(?:clause|article|section|البند|بند|المادة)\s*(?:no\.?|number|رقم)?\s*#?\s*([0-9٠-٩۰-۹]+)`)

var bareNumber = regexp.MustCompile(`^\s*#?\s*([0-9٠-٩۰-۹]+)\s*$`)

// ClauseRef extracts a clause ID from "clause 7", "البند ٧" or a bare
// number. ok is false when s holds no reference.
func ClauseRef(s string) (string, bool) {
	if m := bareNumber.FindStringSubmatch(s); m != nil {
		return trimLeadingZeros(asciiDigits(m[1])), true
	}
	if m := clauseRefPattern.FindStringSubmatch(s); m != nil {
		return trimLeadingZeros(asciiDigits(m[1])), true
	}
	return "", false
}

func trimLeadingZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

// asciiDigits converts Arabic-Indic and Eastern Arabic-Indic digits.
func asciiDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		case r == '٫':
			b.WriteRune('.')
		case r == '٬':
			b.WriteRune(',')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var currencyAliases = map[string]string{
	"jod": "JOD", "jd": "JOD", "dinar": "JOD", "dinars": "JOD", "jordanian dinar": "JOD", "jordanian dinars": "JOD",
	"دينار": "JOD", "دنانير": "JOD", "دينار أردني": "JOD", "دينار اردني": "JOD", "د.أ": "JOD", "د.ا": "JOD",
	"usd": "USD", "$": "USD", "dollar": "USD", "dollars": "USD", "دولار": "USD",
	"eur": "EUR", "€": "EUR", "euro": "EUR", "euros": "EUR", "يورو": "EUR",
}

var moneyPattern = regexp.MustCompile(`^\s*([$€]?)\s*([0-9٠-٩۰-۹][0-9٠-٩۰-۹,.٬٫]*)\s*(.*?)\s*$`)

// SplitMoney splits "400 JOD" into amount "400" and currency "JOD". The
// currency is empty when none was written. ok is false when s does not start
// with an amount.
func SplitMoney(s string) (amount, currency string, ok bool) {
	m := moneyPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	amount = strings.ReplaceAll(asciiDigits(m[2]), ",", "")
	amount = strings.TrimRight(amount, ".")

	unit := strings.TrimSpace(m[1] + " " + m[3])
	unit = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(unit, "monthly"), "شهرياً"))
	if unit == "" {
		return amount, "", true
	}
	if c, found := currencyAliases[strings.ToLower(unit)]; found {
		return amount, c, true
	}
	return amount, strings.ToUpper(unit), true
}

// isMoneyField reports whether f carries an amount.
func isMoneyField(f contract.FieldName) bool {
	return f == contract.FieldRentAmount || f == contract.FieldDeposit
}

// normalizeFieldValue splits money values into amount and currency and
// converts digits. The returned map holds every field the value sets.
func normalizeFieldValue(f contract.FieldName, value string) map[contract.FieldName]string {
	value = strings.TrimSpace(value)
	out := map[contract.FieldName]string{}
	if isMoneyField(f) {
		if amount, cur, ok := SplitMoney(value); ok {
			out[f] = amount
			if cur != "" {
				out[contract.FieldCurrency] = cur
			}
			return out
		}
	}
	if f == contract.FieldCurrency {
		if c, ok := currencyAliases[strings.ToLower(value)]; ok {
			value = c
		}
	}
	if f == contract.FieldStartDate || f == contract.FieldEndDate {
		value = asciiDigits(value)
	}
	out[f] = value
	return out
}

// normalizeType returns the canonical type, or the trimmed raw label when it
// is not recognized. An empty label defaults to residential.
func normalizeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return string(contract.TypeResidential)
	}
	if t, ok := contract.ParseType(raw); ok {
		return string(t)
	}
	return raw
}
