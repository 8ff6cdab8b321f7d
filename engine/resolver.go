package engine

import (
	"errors"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
)

var ErrNotResolved = errors.New("no candidate resolved to a canonical product")

// Resolution is a successful identifier match.
type Resolution struct {
	CommonCode  string
	ProductType models.ProductType
	Source      CandidateSource
	Identifier  string
}

// Resolve runs the ordered strategy chain over the snapshot:
// first choice token, then SKU (exact SKU column, then variant id), then
// the platform product code fallback. Only the FIRST choice token is tried;
// extra tokens are an anomaly the caller surfaces, not extra deductions.
//
// On failure it returns ErrNotResolved plus the identifier to record in the
// unresolved queue: the first choice token when one exists, else the SKU,
// else the platform code.
func Resolve(snap *MappingSnapshot, item models.OrderLineItem) (*Resolution, string, error) {
	tokens := ExtractChoiceTokens(item.RawChoiceText)

	if len(tokens) > 0 {
		if commonCode, ok := snap.ChoiceToCommon[tokens[0]]; ok {
			return &Resolution{
				CommonCode:  commonCode,
				ProductType: snap.ProductType(commonCode),
				Source:      SourceChoice,
				Identifier:  tokens[0],
			}, "", nil
		}
	}

	if item.RawSku != "" {
		if commonCode, ok := snap.SkuToCommon[item.RawSku]; ok {
			return &Resolution{
				CommonCode:  commonCode,
				ProductType: snap.ProductType(commonCode),
				Source:      SourceSku,
				Identifier:  item.RawSku,
			}, "", nil
		}
		if commonCode, ok := snap.VariantToCommon[item.RawSku]; ok {
			return &Resolution{
				CommonCode:  commonCode,
				ProductType: snap.ProductType(commonCode),
				Source:      SourceSku,
				Identifier:  item.RawSku,
			}, "", nil
		}
	}

	if item.PlatformProductCode != "" {
		if commonCode, ok := snap.PlatformToCommon[item.PlatformProductCode]; ok {
			return &Resolution{
				CommonCode:  commonCode,
				ProductType: snap.ProductType(commonCode),
				Source:      SourceFallback,
				Identifier:  item.PlatformProductCode,
			}, "", nil
		}
	}

	failedIdentifier := item.PlatformProductCode
	if item.RawSku != "" {
		failedIdentifier = item.RawSku
	}
	if len(tokens) > 0 {
		failedIdentifier = tokens[0]
	}
	return nil, failedIdentifier, ErrNotResolved
}
