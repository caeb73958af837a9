package enginetest

import (
	"fmt"
	"sync"
	"time"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// Pipeline is a fake engine.Pipeline.
type Pipeline struct {
	mu       sync.Mutex
	name     string
	elements []engine.Element
	bus      *Bus

	current       engine.State
	pending       engine.State
	pendingPolls  int
	neverComplete bool
	live          bool

	requests []engine.State
	queries  int
	released bool
}

var _ engine.Pipeline = (*Pipeline)(nil)

// Name implements engine.Pipeline.
func (p *Pipeline) Name() string { return p.name }

// Elements implements engine.Pipeline.
func (p *Pipeline) Elements() []engine.Element {
	out := make([]engine.Element, len(p.elements))
	copy(out, p.elements)
	return out
}

// Bus implements engine.Pipeline.
func (p *Pipeline) Bus() engine.Bus { return p.bus }

// FakeBus returns the concrete bus so tests can post messages.
func (p *Pipeline) FakeBus() *Bus { return p.bus }

// SetState implements engine.Pipeline.
func (p *Pipeline) SetState(target engine.State) engine.StateChangeReturn {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, target)

	if target == engine.StateNull {
		old := p.current
		p.current = engine.StateNull
		p.pending = engine.StateVoidPending
		p.pendingPolls = 0
		p.neverComplete = false
		p.postStateChanged(old, p.current)
		return engine.StateChangeSuccess
	}

	var (
		polls int
		never bool
		live  bool
	)
	upward := target >= engine.StatePaused && p.current < target

	for _, el := range p.elements {
		b := behaviorOf(el)
		if b.FailAt != 0 && target >= b.FailAt {
			text := b.ErrorText
			if text == "" {
				text = fmt.Sprintf("%s failed to change state to %s", el.Name(), target)
			}
			p.bus.Post(engine.Message{
				Type:   engine.MessageError,
				Source: el.Name(),
				Text:   text,
				Debug:  b.ErrorDebug,
			})
			return engine.StateChangeFailure
		}
		if upward {
			if b.AsyncPolls > polls {
				polls = b.AsyncPolls
			}
			never = never || b.NeverComplete
		}
		live = live || b.Live
	}
	p.live = live

	if polls > 0 || never {
		p.pending = target
		p.pendingPolls = polls
		p.neverComplete = never
		return engine.StateChangeAsync
	}

	old := p.current
	p.current = target
	p.pending = engine.StateVoidPending
	p.postStateChanged(old, target)

	if live && target == engine.StatePaused {
		return engine.StateChangeNoPreroll
	}
	return engine.StateChangeSuccess
}

// QueryState implements engine.Pipeline. Every call advances a pending
// asynchronous transition by one step.
func (p *Pipeline) QueryState() (engine.StateChangeReturn, engine.State, engine.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queries++

	if p.pending == engine.StateVoidPending {
		return engine.StateChangeSuccess, p.current, engine.StateVoidPending
	}
	if p.neverComplete {
		return engine.StateChangeAsync, p.current, p.pending
	}

	p.pendingPolls--
	if p.pendingPolls > 0 {
		return engine.StateChangeAsync, p.current, p.pending
	}

	old := p.current
	p.current = p.pending
	p.pending = engine.StateVoidPending
	p.postStateChanged(old, p.current)
	p.bus.Post(engine.Message{Type: engine.MessageAsyncDone, Source: p.name})

	if p.live && p.current == engine.StatePaused {
		return engine.StateChangeNoPreroll, p.current, engine.StateVoidPending
	}
	return engine.StateChangeSuccess, p.current, engine.StateVoidPending
}

// Release implements engine.Pipeline.
func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

// Released reports whether Release was called.
func (p *Pipeline) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// CurrentState returns the simulated current state.
func (p *Pipeline) CurrentState() engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Requests returns every state passed to SetState, in order.
func (p *Pipeline) Requests() []engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]engine.State, len(p.requests))
	copy(out, p.requests)
	return out
}

// Queries returns how many times QueryState ran.
func (p *Pipeline) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// ElementByType returns the first element of the given type, or nil.
func (p *Pipeline) ElementByType(typeName string) engine.Element {
	for _, el := range p.elements {
		if el.TypeName() == typeName {
			return el
		}
	}
	return nil
}

func (p *Pipeline) postStateChanged(old, new engine.State) {
	p.bus.Post(engine.Message{
		Type:     engine.MessageStateChanged,
		Source:   p.name,
		OldState: old,
		NewState: new,
	})
}

func behaviorOf(el engine.Element) Behavior {
	switch e := el.(type) {
	case *Element:
		return e.behavior
	case *OverlaySink:
		return e.behavior
	case *FrameSink:
		return e.behavior
	}
	return Behavior{}
}

// Bus is a fake engine.Bus. TimedPop never waits: an empty bus answers nil
// right away.
type Bus struct {
	mu       sync.Mutex
	messages []engine.Message
}

var _ engine.Bus = (*Bus)(nil)

// Post appends a message.
func (b *Bus) Post(msg engine.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

// Len returns the number of queued messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// TimedPop implements engine.Bus.
func (b *Bus) TimedPop(_ time.Duration) *engine.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return nil
	}
	msg := b.messages[0]
	b.messages = b.messages[1:]
	return &msg
}
