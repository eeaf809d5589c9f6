package featuregate

// FeatureKey identifies a gated feature.
type FeatureKey string

const (
	FeatureImageToPDF  FeatureKey = "IMAGE_TO_PDF"
	FeaturePDFCompress FeatureKey = "PDF_COMPRESS"
	FeaturePDFMerge    FeatureKey = "PDF_MERGE"
	FeatureOCRExtract  FeatureKey = "OCR_EXTRACT"
	FeaturePDFSign     FeatureKey = "PDF_SIGN"
	FeaturePDFSplit    FeatureKey = "PDF_SPLIT"
	FeaturePDFToWord   FeatureKey = "PDF_TO_WORD"
	FeaturePDFToImage  FeatureKey = "PDF_TO_IMAGE"
	FeatureWordToPDF   FeatureKey = "WORD_TO_PDF"
	FeatureProtectPDF  FeatureKey = "PROTECT_PDF"
	FeatureUnlockPDF   FeatureKey = "UNLOCK_PDF"
)

// Features lists every recognized feature key.
var Features = []FeatureKey{
	FeatureImageToPDF,
	FeaturePDFCompress,
	FeaturePDFMerge,
	FeatureOCRExtract,
	FeaturePDFSign,
	FeaturePDFSplit,
	FeaturePDFToWord,
	FeaturePDFToImage,
	FeatureWordToPDF,
	FeatureProtectPDF,
	FeatureUnlockPDF,
}

// ParseFeatureKey validates a raw string arriving from an untyped
// boundary (config file, persisted blob). Unrecognized values report
// ok=false; callers treat them as having no free allowance.
func ParseFeatureKey(raw string) (FeatureKey, bool) {
	for _, f := range Features {
		if string(f) == raw {
			return f, true
		}
	}
	return FeatureKey(raw), false
}

// UsageRecord is the persisted daily usage blob. It is valid only for
// the calendar day named by Date; a record read on any other day is
// treated as absent.
type UsageRecord struct {
	Date   string             `json:"date"`
	Counts map[FeatureKey]int `json:"counts"`
}

// DateLayout is the calendar-day format used by UsageRecord.Date.
const DateLayout = "2006-01-02"

// UsageKey is the storage key the ledger persists its record under.
const UsageKey = "daily_usage"
