package modem

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/at"
)

// HTTP session timings.
const (
	httpStepUnits     = 1
	httpActionUnits   = 3
	httpSettleUnits   = 11
	httpReadUnits     = 3
	httpUploadTimeout = 10000 // ms the module keeps the upload window open
	// DefaultContentType is declared for POST bodies.
	DefaultContentType = "application/json"
)

// BearerConfig describes the GPRS bearer profile.
type BearerConfig struct {
	APN string
	// Address overrides the APN with an explicit access point address.
	Address  string
	User     string
	Password string
}

// InitializeHTTPSession configures and opens the GPRS bearer, then starts
// the HTTP service with SSL enabled on bearer profile 1.
func (m *Modem) InitializeHTTPSession(ctx context.Context, bearer BearerConfig) error {
	for _, v := range []string{bearer.APN, bearer.Address, bearer.User, bearer.Password} {
		if err := checkQuoted(v); err != nil {
			return errors.Wrap(err, "bearer config")
		}
	}

	cmds := []string{
		fmt.Sprintf(at.CmdBearerParam, at.BearerContentType, at.BearerGPRS),
		fmt.Sprintf(at.CmdBearerParam, at.BearerAPN, bearer.APN),
	}
	if bearer.Address != "" {
		cmds = append(cmds, fmt.Sprintf(at.CmdBearerParam, at.BearerAPN, bearer.Address))
	}
	if bearer.User != "" {
		cmds = append(cmds, fmt.Sprintf(at.CmdBearerParam, at.BearerUser, bearer.User))
	}
	if bearer.Password != "" {
		cmds = append(cmds, fmt.Sprintf(at.CmdBearerParam, at.BearerPassword, bearer.Password))
	}
	cmds = append(cmds, at.CmdBearerQuery, at.CmdBearerOpen)

	for _, cmd := range cmds {
		if _, err := m.sendAndVerify(ctx, cmd, at.OK, httpStepUnits, true, Report); err != nil {
			return errors.Wrapf(err, "configure bearer: %s", cmd)
		}
	}
	return m.openHTTPService(ctx)
}

func (m *Modem) openHTTPService(ctx context.Context) error {
	for _, cmd := range []string{at.CmdHTTPInit, at.CmdHTTPSSL, at.CmdHTTPContextID} {
		if _, err := m.sendAndVerify(ctx, cmd, at.OK, httpStepUnits, true, Report); err != nil {
			return errors.Wrapf(err, "open http service: %s", cmd)
		}
	}
	m.httpOpen = true
	return nil
}

// HTTPPost uploads body to url over the GPRS bearer and returns the
// module's reply to AT+HTTPREAD. The HTTP service is terminated afterwards
// and reopened by the next request.
//
// The body is uploaded with AT+HTTPDATA before AT+HTTPACTION=1 is issued;
// the module posts whatever was uploaded when the action starts.
func (m *Modem) HTTPPost(ctx context.Context, url, body string) (string, error) {
	if err := checkQuoted(url); err != nil {
		return "", errors.Wrap(err, "http post url")
	}
	if !m.httpOpen {
		if err := m.openHTTPService(ctx); err != nil {
			return "", err
		}
	}
	defer m.terminateHTTP(ctx)

	steps := []struct {
		cmd      string
		expected string
	}{
		{fmt.Sprintf(at.CmdHTTPURL, url), at.OK},
		{fmt.Sprintf(at.CmdHTTPContent, DefaultContentType), at.OK},
		{fmt.Sprintf(at.CmdHTTPData, len(body), httpUploadTimeout), at.Download},
	}
	for _, step := range steps {
		if _, err := m.sendAndVerify(ctx, step.cmd, step.expected, httpStepUnits, true, Report); err != nil {
			return "", errors.Wrapf(err, "http post: %s", step.cmd)
		}
	}

	if _, err := m.send(ctx, body+at.CtrlZ, httpStepUnits, false); err != nil {
		return "", errors.Wrap(err, "http post: upload body")
	}
	return m.httpAction(ctx, at.HTTPActionPost)
}

// HTTPGet requests url over the GPRS bearer and returns the module's reply
// to AT+HTTPREAD.
func (m *Modem) HTTPGet(ctx context.Context, url string) (string, error) {
	if err := checkQuoted(url); err != nil {
		return "", errors.Wrap(err, "http get url")
	}
	if !m.httpOpen {
		if err := m.openHTTPService(ctx); err != nil {
			return "", err
		}
	}
	defer m.terminateHTTP(ctx)

	if _, err := m.sendAndVerify(ctx, fmt.Sprintf(at.CmdHTTPURL, url), at.OK, httpStepUnits, true, Report); err != nil {
		return "", errors.Wrap(err, "http get: set url")
	}
	return m.httpAction(ctx, at.HTTPActionGet)
}

func (m *Modem) httpAction(ctx context.Context, action int) (string, error) {
	cmd := fmt.Sprintf(at.CmdHTTPAction, action)
	if _, err := m.sendAndVerify(ctx, cmd, at.OK, httpActionUnits, true, Report); err != nil {
		return "", errors.Wrapf(err, "http action %d", action)
	}
	if err := m.wait(ctx, httpSettleUnits); err != nil {
		return "", err
	}
	resp, err := m.send(ctx, at.CmdHTTPRead, httpReadUnits, true)
	if err != nil {
		return "", errors.Wrap(err, "http read")
	}
	return resp, nil
}

func (m *Modem) terminateHTTP(ctx context.Context) {
	m.httpOpen = false
	if _, err := m.sendAndVerify(ctx, at.CmdHTTPTerminate, at.OK, httpStepUnits, true, Report); err != nil {
		m.logger.Warn("http terminate failed", zap.Error(err))
	}
}

// checkQuoted rejects values that would close a quoted AT parameter or
// start a new command line.
func checkQuoted(v string) error {
	if strings.ContainsAny(v, "\"\r\n"+at.CtrlZ) {
		return errors.Wrapf(ErrInvalidParameter, "%q", v)
	}
	return nil
}
