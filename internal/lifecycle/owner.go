package lifecycle

import (
	"fmt"

	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"go.uber.org/zap"
)

// Observer reacts to screen lifecycle transitions. Callbacks run on the UI loop.
type Observer interface {
	OnCreate()
	OnResume()
	OnPause()
	OnDestroy()
}

type State int

const (
	Initialized State = iota
	Created
	Resumed
	Paused
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Resumed:
		return "resumed"
	case Paused:
		return "paused"
	case Destroyed:
		return "destroyed"
	default:
		return "initialized"
	}
}

type Event string

const (
	EventCreate  Event = "create"
	EventResume  Event = "resume"
	EventPause   Event = "pause"
	EventDestroy Event = "destroy"
)

func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventCreate, EventResume, EventPause, EventDestroy:
		return e, nil
	default:
		return "", fmt.Errorf("unknown lifecycle event %q", s)
	}
}

// ErrInvalidTransition is returned for an event the current state cannot take.
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Event, e.From)
}

// Owner drives observers through create → resume ⇄ pause → destroy.
// Handle and State must run on the UI loop; Post may be called from anywhere.
type Owner struct {
	loop      scheduler.Poster
	observers []Observer
	state     State
	logger    *zap.Logger
}

func NewOwner(loop scheduler.Poster, logger *zap.Logger) *Owner {
	return &Owner{
		loop:   loop,
		logger: logger.Named("lifecycle"),
	}
}

func (o *Owner) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

// Post schedules ev on the UI loop. Invalid transitions are logged and dropped.
func (o *Owner) Post(ev Event) bool {
	return o.loop.Post(func() {
		if err := o.Handle(ev); err != nil {
			o.logger.Warn("Lifecycle event rejected", zap.Error(err))
		}
	})
}

func (o *Owner) Handle(ev Event) error {
	switch ev {
	case EventCreate:
		if o.state != Initialized {
			return &ErrInvalidTransition{From: o.state, Event: ev}
		}
		o.transition(Created, Observer.OnCreate)
	case EventResume:
		if o.state != Created && o.state != Paused {
			return &ErrInvalidTransition{From: o.state, Event: ev}
		}
		o.transition(Resumed, Observer.OnResume)
	case EventPause:
		if o.state != Resumed {
			return &ErrInvalidTransition{From: o.state, Event: ev}
		}
		o.transition(Paused, Observer.OnPause)
	case EventDestroy:
		if o.state == Destroyed {
			return &ErrInvalidTransition{From: o.state, Event: ev}
		}
		if o.state == Resumed {
			o.transition(Paused, Observer.OnPause)
		}
		o.transition(Destroyed, Observer.OnDestroy)
	default:
		return fmt.Errorf("unknown lifecycle event %q", ev)
	}
	return nil
}

func (o *Owner) State() State {
	return o.state
}

func (o *Owner) transition(to State, notify func(Observer)) {
	o.logger.Debug("Lifecycle transition",
		zap.Stringer("from", o.state),
		zap.Stringer("to", to))
	o.state = to
	for _, obs := range o.observers {
		notify(obs)
	}
}
