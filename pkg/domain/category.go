package domain

type DocumentCategory string

const (
	CategoryDriversLicense   DocumentCategory = "drivers_license"
	CategoryPayStubs         DocumentCategory = "pay_stubs"
	CategoryBankStatements   DocumentCategory = "bank_statements"
	CategoryProofOfResidence DocumentCategory = "proof_of_residence"
	CategoryTaxReturns       DocumentCategory = "tax_returns"
	CategoryInsurance        DocumentCategory = "insurance"
)

var documentCategories = []DocumentCategory{
	CategoryDriversLicense,
	CategoryPayStubs,
	CategoryBankStatements,
	CategoryProofOfResidence,
	CategoryTaxReturns,
	CategoryInsurance,
}

var categoryLabels = map[DocumentCategory]string{
	CategoryDriversLicense:   "Government ID",
	CategoryPayStubs:         "Proof of Income",
	CategoryBankStatements:   "Bank Statements",
	CategoryProofOfResidence: "Proof of Address",
	CategoryTaxReturns:       "Tax Documents",
	CategoryInsurance:        "Insurance",
}

// DocumentCategories returns the categories in display order.
func DocumentCategories() []DocumentCategory {
	out := make([]DocumentCategory, len(documentCategories))
	copy(out, documentCategories)
	return out
}

// Valid reports whether c is one of the known categories.
func (c DocumentCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the customer-facing name of the category. Unknown values
// are returned as-is.
func (c DocumentCategory) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseDocumentStatus maps a raw status to a DocumentStatus.
func ParseDocumentStatus(raw string) (DocumentStatus, bool) {
	switch DocumentStatus(raw) {
	case DocumentPending, DocumentApproved, DocumentRejected:
		return DocumentStatus(raw), true
	default:
		return "", false
	}
}
