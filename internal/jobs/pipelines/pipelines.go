package pipelines

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/jobs/runtime"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
)

var dependencyBackoffs = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// waitForEbookComplete blocks until the source ebook reaches "complete",
// rechecking after each backoff. An ebook in "error" fails immediately;
// anything still pending after the last recheck is a timeout.
func waitForEbookComplete(dbc dbctx.Context, repo repos.EbookRepo, ebookID uuid.UUID, sleep func(time.Duration)) error {
	for i := 0; ; i++ {
		eb, err := repo.GetByID(dbc, ebookID)
		if err != nil {
			return err
		}
		if eb == nil {
			return fmt.Errorf("ebook %s not found", ebookID)
		}
		switch eb.Status {
		case domain.StatusComplete:
			return nil
		case domain.StatusError:
			return fmt.Errorf("ebook %s extraction failed: %s", ebookID, eb.Error)
		}
		if i >= len(dependencyBackoffs) {
			return fmt.Errorf("timed out waiting for ebook %s extraction to complete (status %s)", ebookID, eb.Status)
		}
		sleep(dependencyBackoffs[i])
	}
}

// runCanceled reloads the job row so an external cancel is honored between
// units of work, not just at the next lifecycle write.
func runCanceled(jc *runtime.Context) bool {
	if jc == nil || jc.Repo == nil || jc.Job == nil {
		return false
	}
	job, err := jc.Repo.GetByID(dbctx.Context{Ctx: jc.Ctx}, jc.Job.ID)
	if err != nil || job == nil {
		return false
	}
	return job.Status == domain.JobCanceled
}

func entityUUID(jc *runtime.Context, payloadKey string) (uuid.UUID, error) {
	if jc.Job != nil && jc.Job.EntityID != nil && *jc.Job.EntityID != uuid.Nil {
		return *jc.Job.EntityID, nil
	}
	if id, ok := jc.PayloadUUID(payloadKey); ok {
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("job %s missing entity id", jc.Job.ID)
}
