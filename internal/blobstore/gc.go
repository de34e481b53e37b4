package blobstore

import (
	"github.com/robfig/cron/v3"

	"github.com/agentserver/agentserver/internal/logging"
)

// ReferencedFunc computes the current set of blob hashes still
// referenced by session data, for use by a scheduled GC sweep.
type ReferencedFunc func() (map[string]struct{}, error)

// ScheduleGC registers a periodic GC sweep on c using spec, a standard
// five-field cron expression (e.g. "0 3 * * *" for daily at 03:00).
// The returned cron.EntryID can be used to unregister the sweep.
func (s *Store) ScheduleGC(c *cron.Cron, spec string, referenced ReferencedFunc) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		refs, err := referenced()
		if err != nil {
			logging.Error().Err(err).Msg("blobstore gc: failed to compute referenced set")
			return
		}
		removed, err := s.GC(refs)
		if err != nil {
			logging.Error().Err(err).Msg("blobstore gc: sweep failed")
			return
		}
		if removed > 0 {
			logging.Info().Int("removed", removed).Msg("blobstore gc: sweep complete")
		}
	})
}
