package perf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type RequestPerf struct {
	Route  string
	Path   string // the path actually matched
	Method string
	Start  time.Time
	End    time.Time

	mu     sync.Mutex
	Blocks []PerfBlock
}

func MakeNewRequestPerf(route string, method string, path string) *RequestPerf {
	return &RequestPerf{
		Start:  time.Now(),
		Route:  route,
		Path:   path,
		Method: method,
	}
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	now := time.Now()
	for i := range rp.Blocks {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = now
		}
	}
	rp.End = now
}

func (rp *RequestPerf) Checkpoint(category, description string) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	now := time.Now()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       now,
		End:         now,
		Category:    category,
		Description: description,
	})
}

// Starts a timed block. Safe to call on a nil *RequestPerf, in which case the
// returned handle does nothing.
func (rp *RequestPerf) StartBlock(category, description string) *BlockHandle {
	if rp == nil {
		return &BlockHandle{}
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{
		perf: rp,
		idx:  len(rp.Blocks) - 1,
	}
}

func (rp *RequestPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

// Writes every block as a field on the event, indented by nesting depth.
func (rp *RequestPerf) MarshalBlocks(e *zerolog.Event) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	blockStack := make([]time.Time, 0)
	for i := range rp.Blocks {
		block := &rp.Blocks[i]
		for len(blockStack) > 0 && block.End.After(blockStack[len(blockStack)-1]) {
			blockStack = blockStack[:len(blockStack)-1]
		}
		e.Str(
			fmt.Sprintf("[%4.d] At %9.2fms", i, rp.MsFromStart(block)),
			fmt.Sprintf("%*.s[%s] %s (%.4fms)", len(blockStack)*2, "", block.Category, block.Description, block.DurationMs()),
		)
		blockStack = append(blockStack, block.End)
	}
}

type BlockHandle struct {
	perf *RequestPerf
	idx  int
}

func (h *BlockHandle) End() {
	if h == nil || h.perf == nil {
		return
	}

	h.perf.mu.Lock()
	defer h.perf.mu.Unlock()

	if h.perf.Blocks[h.idx].End.IsZero() {
		h.perf.Blocks[h.idx].End = time.Now()
	}
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type perfContextKey struct{}

var PerfContextKey = perfContextKey{}

func AttachPerf(ctx context.Context, rp *RequestPerf) context.Context {
	return context.WithValue(ctx, PerfContextKey, rp)
}

// Returns the RequestPerf attached to ctx, or nil. All RequestPerf methods
// tolerate a nil receiver, so the result can be used directly.
func ExtractPerf(ctx context.Context) *RequestPerf {
	if ctx == nil {
		return nil
	}
	rp, _ := ctx.Value(PerfContextKey).(*RequestPerf)
	return rp
}
