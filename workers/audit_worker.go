// workers/audit_worker.go
package workers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"truenumber-arena/models"
	"truenumber-arena/utils"

	"gorm.io/gorm"
)

// auditExport is the object written to the R2 bucket per settled match, the
// off-box source of truth operators reconcile against.
type auditExport struct {
	Match   models.Match        `json:"match"`
	Records []models.GameRecord `json:"records"`
}

// PollAudits periodically exports newly settled matches and their game
// records to the audit bucket, then stamps them archived. Failed uploads are
// retried on the next tick because archived_at stays null.
func PollAudits(ctx context.Context, db *gorm.DB, pollInterval time.Duration) {
	log.Println("Starting settlement audit archiver…")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Settlement audit archiver stopped.")
			return
		case <-ticker.C:
			var matches []models.Match
			err := db.Where("status = ? AND settled_at IS NOT NULL AND archived_at IS NULL", models.MatchStatusFinished).
				Limit(100).
				Find(&matches).Error
			if err != nil {
				log.Printf("❌ Audit scan failed: %v", err)
				continue
			}
			if len(matches) == 0 {
				continue
			}

			for _, m := range matches {
				if err := archiveMatch(ctx, db, m); err != nil {
					log.Printf("❌ Failed to archive match %s: %v", m.ID, err)
				}
			}
		}
	}
}

func archiveMatch(ctx context.Context, db *gorm.DB, match models.Match) error {
	var records []models.GameRecord
	if err := db.Where("match_id = ?", match.ID).Find(&records).Error; err != nil {
		return err
	}

	payload, err := json.Marshal(auditExport{Match: match, Records: records})
	if err != nil {
		return err
	}

	day := match.FinishedAt
	if day == nil {
		now := time.Now()
		day = &now
	}
	key := "audits/" + day.UTC().Format("2006/01/02") + "/" + match.ID + ".json"

	if err := utils.UploadAuditObject(ctx, key, payload); err != nil {
		return err
	}

	now := time.Now()
	if err := db.Model(&models.Match{}).Where("id = ?", match.ID).Update("archived_at", now).Error; err != nil {
		return err
	}

	log.Printf("✅ Archived settlement audit for match %s → %s", match.ID, key)
	return nil
}
