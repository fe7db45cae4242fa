package bridge

import "time"

// Starting a running timer and stopping a stopped one are both no-ops.

func (c *Controller) startOnTimer() {
	if c.onTimer == nil {
		c.onTimer = time.NewTicker(c.config.OnInterval)
	}
}

func (c *Controller) stopOnTimer() {
	if c.onTimer != nil {
		c.onTimer.Stop()
		c.onTimer = nil
	}
}

func (c *Controller) startOffTimer() {
	if c.offTimer == nil {
		c.offTimer = time.NewTimer(c.config.OffDelay)
	}
}

func (c *Controller) stopOffTimer() {
	if c.offTimer != nil {
		c.offTimer.Stop()
		c.offTimer = nil
	}
}

func (c *Controller) startStateTimer() {
	if c.stateTimer == nil {
		c.stateTimer = time.NewTicker(c.config.StateInterval)
	}
}

func (c *Controller) stopStateTimer() {
	if c.stateTimer != nil {
		c.stateTimer.Stop()
		c.stateTimer = nil
	}
}

func (c *Controller) stopTimers() {
	c.stopOnTimer()
	c.stopOffTimer()
	c.stopStateTimer()
}

// nil channels block forever, which keeps inactive timers out of the select.

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
