package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/pkg/logger"
)

// BackfillResult summarises a replay of archived snapshots
type BackfillResult struct {
	Files      int `json:"files"`
	Unreadable int `json:"unreadable"`
	featurestore.UpdateResult
}

// Backfill replays every archived raw snapshot into history in filename
// (= cycle time) order. Re-running it is a no-op for points already stored.
func Backfill(ctx context.Context, raw *artifact.Store, store *featurestore.Store, log *logger.Logger) (BackfillResult, error) {
	log = log.WithField("module", "backfill")

	var res BackfillResult
	files, err := raw.Archives()
	if err != nil {
		return res, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var snap contracts.RawSnapshot
		if err := artifact.ReadFile(path, &snap); err != nil {
			res.Unreadable++
			log.WithField("file", filepath.Base(path)).WithError(err).Warn("Skipped unreadable snapshot")
			continue
		}

		upd, err := store.Update(ctx, &snap)
		if err != nil {
			if contracts.IsPersistence(err) {
				return res, fmt.Errorf("backfill %s: %w", filepath.Base(path), err)
			}
			res.Unreadable++
			log.WithField("file", filepath.Base(path)).WithError(err).Warn("Skipped snapshot")
			continue
		}

		res.Files++
		res.Appended += upd.Appended
		res.Duplicates += upd.Duplicates
		res.Stale += upd.Stale
		res.Skipped += upd.Skipped
	}

	log.WithFields(map[string]interface{}{
		"files":      res.Files,
		"unreadable": res.Unreadable,
		"appended":   res.Appended,
		"duplicates": res.Duplicates,
	}).Info("Backfill completed")
	return res, nil
}
