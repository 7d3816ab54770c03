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

import "github.com/AleutianAI/AleutianLease/services/legal/retrieval"

// Corpora returns the corpora an intent draws legal context from, in
// tie-break order. Export and unsupported turns retrieve nothing.
func Corpora(k Kind) []retrieval.CorpusWeight {
	switch k {
	case KindGenerate, KindEdit:
		return []retrieval.CorpusWeight{
			{Corpus: retrieval.CorpusLeaseClause, Weight: 1.0},
			{Corpus: retrieval.CorpusLawArticle, Weight: 0.8},
		}
	case KindReview:
		return []retrieval.CorpusWeight{
			{Corpus: retrieval.CorpusLawArticle, Weight: 1.0},
			{Corpus: retrieval.CorpusCommonMistake, Weight: 0.9},
		}
	case KindExplain:
		return []retrieval.CorpusWeight{
			{Corpus: retrieval.CorpusLawArticle, Weight: 1.0},
			{Corpus: retrieval.CorpusLeaseClause, Weight: 0.7},
		}
	}
	return nil
}
