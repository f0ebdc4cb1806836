package consignment

import (
	"fmt"

	"gorm.io/gorm"

	"konsinyasi-backend/internal/models"
)

const codePrefix = "CONS-"

func FormatCode(n int64) string {
	return fmt.Sprintf("%s%05d", codePrefix, n)
}

// NextCode counts every consignment ever created, soft-deleted included,
// and counts upward from count+1 until it finds an unused code. Callers
// serialize it with locking.CodeKey; the unique index on code is the backstop.
func NextCode(tx *gorm.DB) (string, error) {
	var count int64
	if err := tx.Unscoped().Model(&models.Consignment{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("count consignments: %w", err)
	}

	for n := count + 1; ; n++ {
		code := FormatCode(n)
		var taken int64
		if err := tx.Unscoped().Model(&models.Consignment{}).Where("code = ?", code).Count(&taken).Error; err != nil {
			return "", fmt.Errorf("check code %s: %w", code, err)
		}
		if taken == 0 {
			return code, nil
		}
	}
}
