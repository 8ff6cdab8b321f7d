package models

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
)

// ChoiceMapping maps a short choice token embedded in free-text order
// customization fields (one uppercase letter + two digits, e.g. "R05")
// to a canonical product code. Maintained by operators and the spreadsheet
// importer; read-only to the deduction engine.
type ChoiceMapping struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:idx_choice_code,priority:1;not null" json:"business_id"`
	ChoiceCode string    `gorm:"uniqueIndex:idx_choice_code,priority:2;size:10;not null" json:"choice_code"`
	CommonCode string    `gorm:"index;size:64;not null" json:"common_code"`
	Memo       string    `gorm:"size:255" json:"memo"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewChoiceMapping struct {
	ChoiceCode string `json:"choice_code" validate:"required"`
	CommonCode string `json:"common_code" validate:"required"`
	Memo       string `json:"memo"`
}

var choiceCodePattern = regexp.MustCompile(`^[A-Z][0-9]{2}$`)

func (input *NewChoiceMapping) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !choiceCodePattern.MatchString(strings.TrimSpace(input.ChoiceCode)) {
		return errors.New("choice code must be one uppercase letter followed by two digits")
	}
	return nil
}

func CreateChoiceMapping(ctx context.Context, input *NewChoiceMapping) (*ChoiceMapping, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	mapping := ChoiceMapping{
		BusinessId: businessId,
		ChoiceCode: strings.TrimSpace(input.ChoiceCode),
		CommonCode: strings.TrimSpace(input.CommonCode),
		Memo:       input.Memo,
	}
	if err := config.GetDB().WithContext(ctx).Create(&mapping).Error; err != nil {
		return nil, err
	}
	return &mapping, nil
}

func ListChoiceMappings(ctx context.Context) ([]ChoiceMapping, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var mappings []ChoiceMapping
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("choice_code").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}
