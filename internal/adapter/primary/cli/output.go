package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"calmsession/internal/domain"
)

// closeOnce returns a func that closes ch the first time it is called.
func closeOnce(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// positionPrinter writes one line per whole second of playback.
type positionPrinter struct {
	out io.Writer

	mu   sync.Mutex
	last time.Duration
	seen bool
}

func (p *positionPrinter) print(st domain.PlaybackState) {
	if !st.Loaded {
		return
	}
	sec := st.Position.Truncate(time.Second)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen && sec == p.last {
		return
	}
	p.seen, p.last = true, sec
	state := "paused"
	if st.Playing {
		state = "playing"
	}
	fmt.Fprintf(p.out, "%s / %s  %s %s\n", clockString(sec), clockString(st.Duration), progressBar(ratio(st.Position, st.Duration), 20), state)
}

func ratio(pos, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(pos) / float64(total)
}

func progressBar(p float64, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func clockString(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// lookup walks a dotted key through nested YAML maps.
func lookup(tree map[string]any, key string) (any, bool) {
	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
