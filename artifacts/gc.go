package artifacts

import (
	"context"
	"sort"

	rperrors "github.com/heroku/buildpacks-release-phase/errors"
)

// DefaultKeep is how many artifacts GC keeps when not told otherwise.
const DefaultKeep = 2

// GC deletes every artifact in store except the keep most recently
// modified ones and returns what it deleted.
func GC(ctx context.Context, store Store, keep int) ([]Artifact, error) {
	const op = "artifacts.gc"

	if keep < 0 {
		return nil, rperrors.Newf(rperrors.CodeInvalidInput, op, "keep must not be negative, got %d", keep)
	}

	all, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].ModTime.Equal(all[j].ModTime) {
			return all[i].ModTime.After(all[j].ModTime)
		}
		return all[i].Name > all[j].Name
	})

	var deleted []Artifact
	for _, a := range all[keep:] {
		if err := store.Delete(ctx, a.Name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, a)
	}
	return deleted, nil
}
