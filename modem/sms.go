package modem

import (
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/at"
)

// SMS represents a text message stored on the modem.
type SMS struct {
	Index   int
	Storage string
	Status  string // "REC UNREAD", "REC READ", "STO UNSENT", "STO SENT"
	Sender  string
	Time    string
	Text    string
}

const (
	smsStepUnits    = 1
	smsPollUnits    = 1
	smsReadMsgUnits = 1
)

// SendTextMessage sends a text message to a recipient in E.164 format and
// returns the module's reply to the message body.
//
// The three preamble commands (text mode, GSM alphabet, recipient) are sent
// and waited one by one. The body is terminated by Ctrl-Z, not a line
// terminator, which makes the module transmit it.
func (m *Modem) SendTextMessage(ctx context.Context, recipient, message string) (string, error) {
	if !recipientPattern.MatchString(recipient) {
		return "", errors.Wrapf(ErrInvalidRecipient, "%q", recipient)
	}
	if strings.Contains(message, at.CtrlZ) {
		return "", ErrInvalidMessage
	}

	steps := []struct {
		cmd      string
		expected string
	}{
		{at.CmdSetTextMode, at.OK},
		{at.CmdCharsetGSM, at.OK},
		{fmt.Sprintf(at.CmdSendMessage, recipient), strings.TrimSpace(at.Prompt)},
	}
	for _, step := range steps {
		if _, err := m.sendAndVerify(ctx, step.cmd, step.expected, smsStepUnits, true, Report); err != nil {
			return "", errors.Wrapf(err, "sms preamble %s", step.cmd)
		}
	}

	resp, err := m.send(ctx, message+at.CtrlZ, smsStepUnits, false)
	if err != nil {
		return "", errors.Wrap(err, "sms body")
	}
	if !strings.Contains(resp, at.RespSendMessage) {
		m.logger.Warn("sms body not confirmed",
			zap.String("recipient", recipient), zap.String("response", resp))
	}
	return resp, nil
}

var recipientPattern = regexp.MustCompile(`^\+?[0-9]{3,15}$`)

var cmtiPattern = regexp.MustCompile(`\+CMTI: "(\w+)",(\d+)`)

// ReceiveSMS blocks until a new message notification arrives, polling the
// line every time unit, then reads the message it points to.
//
// Only cancellation of ctx ends the wait without a message.
func (m *Modem) ReceiveSMS(ctx context.Context) (SMS, error) {
	for {
		lines, err := m.readLines(ctx, smsPollUnits)
		if err != nil {
			return SMS{}, err
		}

		for _, line := range lines {
			if at.Classify(line) != at.TypeURC {
				continue
			}
			match := cmtiPattern.FindStringSubmatch(line)
			if match == nil {
				m.logger.Debug("ignoring notification", zap.String("urc", line))
				continue
			}
			index, _ := strconv.Atoi(match[2])
			m.logger.Info("new message notification",
				zap.String("storage", match[1]), zap.Int("index", index))

			msg, err := m.readMessage(ctx, index)
			if err != nil {
				return SMS{}, err
			}
			msg.Storage = match[1]
			m.lastNumber = msg.Sender
			return msg, nil
		}
	}
}

// ReceiveTextMessage is ReceiveSMS returning only the message body.
func (m *Modem) ReceiveTextMessage(ctx context.Context) (string, error) {
	msg, err := m.ReceiveSMS(ctx)
	if err != nil {
		return "", err
	}
	return msg.Text, nil
}

// LastNumber returns the sender of the last received message.
func (m *Modem) LastNumber() string {
	return m.lastNumber
}

func (m *Modem) readMessage(ctx context.Context, index int) (SMS, error) {
	cmd := fmt.Sprintf(at.CmdReadMessage, index)
	lines, err := m.sendLines(ctx, cmd, smsReadMsgUnits)
	if err != nil {
		return SMS{}, errors.Wrapf(err, "read message %d", index)
	}

	for i, line := range lines {
		if !strings.HasPrefix(line, at.RespReadMessage) {
			continue
		}
		msg, err := parseMessageHeader(line)
		if err != nil {
			return SMS{}, err
		}
		msg.Index = index

		var body []string
		for _, l := range lines[i+1:] {
			if at.Classify(l) == at.TypeFinal {
				break
			}
			body = append(body, l)
		}
		msg.Text = strings.Join(body, "\n")
		return msg, nil
	}

	return SMS{}, &CommandOutputError{Command: cmd, Expected: at.RespReadMessage, Response: strings.Join(lines, "\n")}
}

// parseMessageHeader parses `+CMGR: "REC UNREAD","+48123456789","","23/11/22,11:10:00+04"`.
func parseMessageHeader(line string) (SMS, error) {
	payload := strings.TrimSpace(strings.TrimPrefix(line, at.RespReadMessage))
	r := csv.NewReader(strings.NewReader(payload))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		return SMS{}, errors.Wrapf(err, "parse message header %q", line)
	}
	if len(fields) < 2 {
		return SMS{}, errors.Errorf("parse message header %q: missing sender", line)
	}

	msg := SMS{Status: fields[0], Sender: fields[1]}
	if len(fields) >= 4 {
		msg.Time = fields[3]
	}
	return msg, nil
}
