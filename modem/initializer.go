package modem

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/email2sms/at"
)

// initialize runs the one-time setup sequence on port: SIM presence, PIN
// readiness and the switch to text-mode SMS. Each step requires an exact
// reply. Device errors are returned as non-fatal InitErrors so startup can
// try the next port; a missing SIM or a SIM waiting for its PIN is fatal.
func (m *Modem) initialize(ctx context.Context, port Port) error {
	m.logger.Debug("Initialising modem", "port", port.String())

	steps := []struct {
		step    InitStep
		cmd     string
		timeout time.Duration
		want    string
		failure error
		fatal   bool
	}{
		{StepSIMCheck, at.CmdSimPresence, m.config.SimCheckTimeout, at.ReplySimPresent, ErrSIMNotPresent, true},
		{StepPINCheck, at.CmdSimStatus, m.config.CommandTimeout, at.ReplySimReady, ErrSIMPinRequired, true},
		{StepTextMode, at.CmdSetTextMode, m.config.CommandTimeout, at.OK, ErrTextMode, m.config.StrictTextMode},
	}

	for _, s := range steps {
		reply, err := m.exchange(ctx, port, s.cmd, s.timeout)
		if err != nil {
			return &InitError{Port: port, Step: s.step, Err: err}
		}
		if reply == s.want {
			m.logger.Info("Initialisation step passed", "port", port.Name, "step", s.step)
			continue
		}

		if !s.fatal {
			// Only the text mode switch gets here. The gateway carries on and
			// submissions fail later if the modem really is in PDU mode.
			m.logger.Error("Cannot switch GSM modem to text mode", "port", port.Name, "reply", reply)
			continue
		}
		m.logger.Error("Initialisation step failed", "port", port.Name, "step", s.step, "reply", reply)
		return &InitError{
			Port:  port,
			Step:  s.step,
			Reply: reply,
			Fatal: true,
			Err:   fmt.Errorf("%w: %w", s.failure, unexpected(reply)),
		}
	}
	return nil
}
