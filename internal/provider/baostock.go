package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

// Default endpoint of the BaoStock data service.
const (
	DefaultBaostockHost = "www.baostock.com"
	DefaultBaostockPort = 10030
)

// Baostock speaks the BaoStock TCP protocol: length-prefixed, tab-separated
// request frames and response frames of the form code\tmessage\tdata, where
// data holds newline-separated rows of comma-separated fields. The service
// requires a session; Login and Logout bracket all queries, and the failover
// fetcher establishes the session lazily and releases it on close.
//
// BaoStock serves volume in shares and amount in CNY but no change or
// amplitude columns; both are derived from the previous close within the
// window, with the first row zero-filled.
type Baostock struct {
	Host string
	Port int

	mu       sync.Mutex
	conn     net.Conn
	reader   *bufio.Reader
	loggedIn bool
}

// NewBaostock creates a Baostock provider targeting host:port. Zero values
// select the public endpoint.
func NewBaostock(host string, port int) *Baostock {
	if host == "" {
		host = DefaultBaostockHost
	}
	if port == 0 {
		port = DefaultBaostockPort
	}
	return &Baostock{Host: host, Port: port}
}

// Name implements Provider.
func (p *Baostock) Name() string { return NameBaostock }

// Login implements SessionProvider: dial and authenticate an anonymous
// session. Idempotent while a session is live.
func (p *Baostock) Login(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginLocked(ctx)
}

func (p *Baostock) loginLocked(ctx context.Context) error {
	if p.loggedIn {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		return fmt.Errorf("baostock dial: %w", err)
	}
	p.conn = conn
	p.reader = bufio.NewReader(conn)

	if _, _, err := p.callLocked(ctx, "login", "anonymous", "123456"); err != nil {
		conn.Close()
		p.conn = nil
		p.reader = nil
		return fmt.Errorf("baostock login: %w", err)
	}
	p.loggedIn = true
	return nil
}

// Logout implements SessionProvider: terminate the session and close the
// connection. Safe to call without a live session.
func (p *Baostock) Logout() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loggedIn {
		return nil
	}
	p.loggedIn = false

	_, _, err := p.callLocked(context.Background(), "logout")
	closeErr := p.conn.Close()
	p.conn = nil
	p.reader = nil
	if err != nil {
		return fmt.Errorf("baostock logout: %w", err)
	}
	return closeErr
}

// Fetch implements Provider. The session is established on demand when the
// caller has not logged in yet. The adjust parameter maps onto BaoStock's
// adjustflag (1 backward, 2 forward, 3 none).
func (p *Baostock) Fetch(ctx context.Context, code string, window domain.DateRange, adjust domain.Adjust) ([]domain.DailyRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loginLocked(ctx); err != nil {
		return nil, err
	}

	bsCode := "sz." + code
	if isShanghai(code) {
		bsCode = "sh." + code
	}

	adjustFlag := "3"
	switch adjust {
	case domain.AdjustForward:
		adjustFlag = "2"
	case domain.AdjustBackward:
		adjustFlag = "1"
	}

	_, data, err := p.callLocked(ctx, "query_history_k_data",
		bsCode,
		"date,code,open,high,low,close,volume,amount,pctChg,turn",
		util.ISO(window.Start),
		util.ISO(window.End),
		"d", // daily frequency
		adjustFlag,
	)
	if err != nil {
		return nil, fmt.Errorf("baostock query %s: %w", bsCode, err)
	}
	if data == "" {
		return nil, nil
	}

	var records []domain.DailyRecord
	prevClose := 0.0
	for _, row := range strings.Split(data, "\n") {
		if strings.TrimSpace(row) == "" {
			continue
		}
		rec, err := parseBaostockRow(row, code, prevClose)
		if err != nil {
			return nil, fmt.Errorf("baostock row %q: %w", row, err)
		}
		prevClose = rec.Close
		records = append(records, rec)
	}
	return records, nil
}

// callLocked sends one request frame and reads one response frame. Frames
// are a 10-digit zero-padded payload length followed by the payload; request
// payloads are method and arguments joined by tabs, response payloads are
// error code, error message, and an optional data block. Callers must hold
// p.mu with a live connection (except during login, which installs it).
func (p *Baostock) callLocked(ctx context.Context, method string, args ...string) (msg, data string, err error) {
	if p.conn == nil {
		return "", "", fmt.Errorf("no connection")
	}

	if deadline, ok := ctx.Deadline(); ok {
		p.conn.SetDeadline(deadline)
	} else {
		p.conn.SetDeadline(time.Now().Add(defaultTimeout))
	}

	payload := method
	if len(args) > 0 {
		payload += "\t" + strings.Join(args, "\t")
	}
	frame := fmt.Sprintf("%010d%s", len(payload), payload)
	if _, err := io.WriteString(p.conn, frame); err != nil {
		return "", "", fmt.Errorf("write: %w", err)
	}

	head := make([]byte, 10)
	if _, err := io.ReadFull(p.reader, head); err != nil {
		return "", "", fmt.Errorf("read header: %w", err)
	}
	n, err := strconv.Atoi(string(head))
	if err != nil || n < 0 {
		return "", "", fmt.Errorf("malformed frame header %q", head)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}

	parts := strings.SplitN(string(body), "\t", 3)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("malformed response %q", body)
	}
	if parts[0] != "0" {
		return "", "", fmt.Errorf("error %s: %s", parts[0], parts[1])
	}
	if len(parts) == 3 {
		data = parts[2]
	}
	return parts[1], data, nil
}

// parseBaostockRow parses one CSV row of the k-data response:
// date,code,open,high,low,close,volume,amount,pctChg,turn.
func parseBaostockRow(row, code string, prevClose float64) (domain.DailyRecord, error) {
	fields := strings.Split(row, ",")
	if len(fields) != 10 {
		return domain.DailyRecord{}, fmt.Errorf("want 10 fields, got %d", len(fields))
	}

	date, err := util.ParseISO(fields[0])
	if err != nil {
		return domain.DailyRecord{}, err
	}

	// Suspended days come back with empty numeric fields; treat those as
	// zero so the reconciler's filter drops them.
	num := func(s string) (float64, error) {
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}

	var open, high, low, closePx, volume, amount, pctChg, turn float64
	for i, dst := range []*float64{&open, &high, &low, &closePx, &volume, &amount, &pctChg, &turn} {
		v, err := num(fields[i+2])
		if err != nil {
			return domain.DailyRecord{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		*dst = v
	}

	change, amplitude := 0.0, 0.0
	if prevClose != 0 {
		change = closePx - prevClose
		amplitude = (high - low) / prevClose * 100
	}

	return domain.DailyRecord{
		Date:         date,
		Code:         code,
		Name:         "", // k-data carries no instrument name
		Open:         util.Round2(open),
		Close:        util.Round2(closePx),
		High:         util.Round2(high),
		Low:          util.Round2(low),
		Volume:       int64(volume),
		Amount:       util.Round2(amount),
		Amplitude:    util.Round2(amplitude),
		PctChange:    util.Round2(pctChg),
		Change:       util.Round2(change),
		TurnoverRate: util.Round2(turn),
	}, nil
}
