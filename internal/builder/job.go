package builder

import (
	"bytes"
	"sync"

	"github.com/fnforge/fnforge/internal/domain"
)

// job tracks one build in flight and its accumulated log. Logs are
// append-only so byte offsets handed to clients stay valid for the
// lifetime of the job.
type job struct {
	mu    sync.Mutex
	state domain.BuildState
	log   bytes.Buffer
	image string
	pod   string
}

func (j *job) appendLog(p []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.log.Write(p)
}

func (j *job) appendLine(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.log.WriteString(line)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		j.log.WriteByte('\n')
	}
}

func (j *job) setState(state domain.BuildState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
}

func (j *job) finish(state domain.BuildState, image string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
	j.image = image
}

// snapshot returns the log bytes from offset onwards plus the current
// state. Offsets beyond the end of the log yield an empty chunk.
func (j *job) snapshot(offset int64, wantLogs bool) ([]byte, domain.BuildState, string, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var chunk []byte
	if wantLogs {
		full := j.log.Bytes()
		if offset < 0 {
			offset = 0
		}
		if offset < int64(len(full)) {
			chunk = append([]byte(nil), full[offset:]...)
		}
	}
	return chunk, j.state, j.image, j.pod
}

// registry holds build jobs keyed by project/name. A new build for the
// same function replaces the previous record.
type registry struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*job)}
}

func (r *registry) create(key, pod string) *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &job{state: domain.StatePending, pod: pod}
	r.jobs[key] = j
	return j
}

func (r *registry) get(key string) (*job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[key]
	return j, ok
}
