package parser

import "time"

// parserBudget decides when a pump has done enough work to yield.
type parserBudget interface {
	consume()
	exhausted() bool
	// clampToDefault limits the remaining allowance to one default-sized
	// slice, used after a script ran in the body.
	clampToDefault()
}

type tokenCountBudget struct {
	remaining     int
	defaultBudget int
}

func (b *tokenCountBudget) consume()        { b.remaining-- }
func (b *tokenCountBudget) exhausted() bool { return b.remaining <= 0 }

func (b *tokenCountBudget) clampToDefault() {
	if b.remaining > b.defaultBudget {
		b.remaining = b.defaultBudget
	}
}

type timedBudget struct {
	now           func() time.Time
	start         time.Time
	budget        time.Duration
	defaultBudget time.Duration
}

func (b *timedBudget) consume() {}

func (b *timedBudget) exhausted() bool {
	return b.now().Sub(b.start) >= b.budget
}

func (b *timedBudget) clampToDefault() {
	if limit := b.now().Sub(b.start) + b.defaultBudget; limit < b.budget {
		b.budget = limit
	}
}

// newBudget returns the allowance for the next pump. The first yields get the
// default budget, later pumps the long one.
func (p *HTMLDocumentParser) newBudget() parserBudget {
	useDefault := p.state.TimesYielded() <= p.config.NumYieldsWithDefaultBudget
	if p.config.Budget == TimedBudget {
		b := &timedBudget{
			now:           p.config.now,
			start:         p.config.now(),
			budget:        p.config.LongTimedBudget,
			defaultBudget: p.config.DefaultTimedBudget,
		}
		if useDefault {
			b.budget = p.config.DefaultTimedBudget
		}
		return b
	}

	b := &tokenCountBudget{
		remaining:     infiniteTokenizationBudget,
		defaultBudget: p.state.GetDefaultBudget(),
	}
	if useDefault {
		b.remaining = p.state.GetDefaultBudget()
	}
	return b
}
