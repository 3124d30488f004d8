package replygate

import "time"

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// Sleeper suspends the calling goroutine; it is only used for the response delay
type Sleeper interface {
	Sleep(d time.Duration)
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SleeperFunc adapts a function to Sleeper
type SleeperFunc func(time.Duration)

func (f SleeperFunc) Sleep(d time.Duration) { f(d) }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemSleeper struct{}

func (systemSleeper) Sleep(d time.Duration) { time.Sleep(d) }
