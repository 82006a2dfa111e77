package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/sweeney/whackamole/internal/logic"
)

// HandleEdge is the dispatcher for an edge on button b. Edges inside the
// shared refractory window are dropped. An accepted edge toggles b's
// indicator and replaces the pending press with b. The toggle starts from
// the recorded indicator state, which always matches the line level.
//
// There is no caller to report to: failures are logged and the edge dropped.
func (c *Controller) HandleEdge(b logic.ButtonIndex) {
	log := c.log.WithFields(logrus.Fields{"button": int(b), "color": b.Color()})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("edge handler panicked, edge dropped")
		}
	}()

	if !c.gate.TryAccept(c.now()) {
		log.Debug("edge debounced")
		return
	}
	if err := c.store.ToggleAndRecord(b); err != nil {
		log.WithError(err).Warn("edge dropped")
		return
	}
	log.Debug("button pressed")
}
