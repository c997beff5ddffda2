package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vertextoedge/asyncfetch/internal/port"
	"go.uber.org/zap"
)

// Data service ports behind the m2m gateway
const (
	sensorPort     = 12576
	deploymentPort = 12587
)

// TimeLayout is the timestamp form of beginDT and endDT in request URLs
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Deployment status filters
const (
	DeploymentsAll      = "all"
	DeploymentsActive   = "active"
	DeploymentsInactive = "inactive"
)

var (
	ErrInvalidBaseURL = errors.New("base url must start with http")
	ErrInvalidRefDes  = errors.New("reference designator needs four parts")

	// instrumentPattern matches subsite/node/port-instrument in the stream index
	instrumentPattern = regexp.MustCompile(`>(\w+/\w+/\w+-\w+)<`)

	deltaUnits = []string{"years", "months", "weeks", "days", "hours", "minutes", "seconds"}
)

// StreamInfo is one stream produced by an instrument, with its time coverage
type StreamInfo struct {
	Stream    string `json:"stream"`
	Method    string `json:"method"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

// Deployment is one deployment event of an instrument
type Deployment struct {
	RefDes string
	Number int
	Start  time.Time

	// Stop is zero while the deployment is active
	Stop time.Time
}

// Active reports whether the deployment has not ended
func (d Deployment) Active() bool {
	return d.Stop.IsZero()
}

// BuildOptions selects streams and shapes the request URLs
type BuildOptions struct {
	// User names the directory the server writes the results to
	User string

	// Stream and Telemetry restrict the streams. Telemetry matches a
	// substring of the stream method.
	Stream    string
	Telemetry string

	// Begin and End bound the data. Zero values use the stream coverage.
	Begin time.Time
	End   time.Time

	// DeltaUnit and DeltaValue request the last DeltaValue units of each
	// stream instead of Begin and End
	DeltaUnit  string
	DeltaValue int

	// TimeCheck clamps the bounds to the stream coverage
	TimeCheck bool

	ExecDPA    bool
	Provenance bool
	Format     string
	Limit      int
	Email      string
}

// DefaultBuildOptions returns options for full-resolution netcdf requests
// over the whole stream coverage
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		TimeCheck:  true,
		ExecDPA:    true,
		Provenance: true,
		Format:     "netcdf",
		Limit:      -1,
	}
}

// Validate checks the options before any request is sent
func (o BuildOptions) Validate() error {
	if strings.TrimSpace(o.User) == "" {
		return fmt.Errorf("user is required")
	}
	switch o.Format {
	case "netcdf", "json":
	default:
		return fmt.Errorf("invalid format: %s", o.Format)
	}
	if o.Limit < -1 || o.Limit > 10000 {
		return fmt.Errorf("limit must be between -1 and 10000, got %d", o.Limit)
	}
	if o.DeltaUnit != "" || o.DeltaValue != 0 {
		if !validDeltaUnit(o.DeltaUnit) {
			return fmt.Errorf("invalid time delta unit %q, want one of %s", o.DeltaUnit, strings.Join(deltaUnits, ", "))
		}
		if o.DeltaValue <= 0 {
			return fmt.Errorf("time delta value must be positive, got %d", o.DeltaValue)
		}
	}
	return nil
}

// Builder creates async request URLs from the instrument catalog
type Builder struct {
	client  port.RequestClient
	baseURL string
	direct  bool
	timeout time.Duration
	logger  *zap.Logger

	// instruments caches the catalog for the lifetime of the builder
	instruments []string
}

// NewBuilder creates a new Builder. Requests go through the m2m gateway
// at baseURL/api/m2m unless direct is set, in which case each data service
// port is addressed on baseURL itself.
func NewBuilder(client port.RequestClient, baseURL string, direct bool, timeout time.Duration, logger *zap.Logger) (*Builder, error) {
	base := strings.Trim(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(base, "http") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		client:  client,
		baseURL: base,
		direct:  direct,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Endpoint returns the URL of path on the given data service port
func (b *Builder) Endpoint(servicePort int, path string) string {
	path = strings.Trim(path, "/")
	if b.direct {
		return fmt.Sprintf("%s:%d/%s", b.baseURL, servicePort, path)
	}
	return fmt.Sprintf("%s/api/m2m/%d/%s", b.baseURL, servicePort, path)
}

func (b *Builder) get(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.logger.Debug("catalog request", zap.String("url", u))
	resp, err := b.client.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, &port.StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Instruments returns every fully qualified reference designator in the
// catalog, sorted
func (b *Builder) Instruments(ctx context.Context) ([]string, error) {
	if b.instruments != nil {
		return b.instruments, nil
	}

	body, err := b.get(ctx, b.Endpoint(sensorPort, "sensor/allstreams"))
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}

	seen := make(map[string]bool)
	instruments := []string{}
	for _, m := range instrumentPattern.FindAllSubmatch(body, -1) {
		id := strings.ReplaceAll(string(m[1]), "/", "-")
		if seen[id] {
			continue
		}
		seen[id] = true
		instruments = append(instruments, id)
	}
	sort.Strings(instruments)

	b.logger.Debug("instrument catalog", zap.Int("instruments", len(instruments)))
	b.instruments = instruments
	return instruments, nil
}

// Search returns the instruments whose reference designator contains refDes
func (b *Builder) Search(ctx context.Context, refDes string) ([]string, error) {
	all, err := b.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, id := range all {
		if strings.Contains(id, refDes) {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// Streams returns the streams produced by a fully qualified instrument
func (b *Builder) Streams(ctx context.Context, instrument string) ([]StreamInfo, error) {
	parts, err := splitRefDes(instrument)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("sensor/inv/%s/%s/%s-%s/metadata/times", parts[0], parts[1], parts[2], parts[3])
	body, err := b.get(ctx, b.Endpoint(sensorPort, path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch streams of %s: %w", instrument, err)
	}

	var streams []StreamInfo
	if err := json.Unmarshal(body, &streams); err != nil {
		return nil, fmt.Errorf("invalid stream metadata for %s: %w", instrument, err)
	}
	return streams, nil
}

// deploymentRecord is a deployment event as served by the asset service.
// referenceDesignator is either a string or a subsite/node/sensor object.
type deploymentRecord struct {
	ReferenceDesignator json.RawMessage `json:"referenceDesignator"`
	DeploymentNumber    float64         `json:"deploymentNumber"`
	EventStartTime      *float64        `json:"eventStartTime"`
	EventStopTime       *float64        `json:"eventStopTime"`
}

func (r deploymentRecord) refDes() string {
	var s string
	if err := json.Unmarshal(r.ReferenceDesignator, &s); err == nil {
		return s
	}
	var parts struct {
		Subsite string `json:"subsite"`
		Node    string `json:"node"`
		Sensor  string `json:"sensor"`
	}
	if err := json.Unmarshal(r.ReferenceDesignator, &parts); err == nil && parts.Subsite != "" {
		return strings.Join([]string{parts.Subsite, parts.Node, parts.Sensor}, "-")
	}
	return ""
}

// Deployments returns the deployment events of the instruments matching refDes
func (b *Builder) Deployments(ctx context.Context, refDes string) ([]Deployment, error) {
	path := "events/deployment/query?refdes=" + url.QueryEscape(refDes)
	body, err := b.get(ctx, b.Endpoint(deploymentPort, path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deployments of %s: %w", refDes, err)
	}

	var records []deploymentRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("invalid deployments for %s: %w", refDes, err)
	}

	deployments := make([]Deployment, 0, len(records))
	for _, r := range records {
		d := Deployment{RefDes: r.refDes(), Number: int(r.DeploymentNumber)}
		if d.RefDes == "" || r.EventStartTime == nil {
			b.logger.Warn("skipping incomplete deployment", zap.String("refdes", refDes), zap.Int("deployment", d.Number))
			continue
		}
		d.Start = time.UnixMilli(int64(*r.EventStartTime)).UTC()
		if r.EventStopTime != nil {
			d.Stop = time.UnixMilli(int64(*r.EventStopTime)).UTC()
		}
		deployments = append(deployments, d)
	}
	return deployments, nil
}

// Build returns request URLs for the streams of every instrument whose
// reference designator contains refDes
func (b *Builder) Build(ctx context.Context, refDes string, opts BuildOptions) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	instruments, err := b.Search(ctx, refDes)
	if err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		b.logger.Info("no instruments match", zap.String("refdes", refDes))
		return nil, nil
	}

	var urls []string
	for _, instrument := range instruments {
		built, err := b.buildInstrument(ctx, instrument, opts)
		if err != nil {
			if ctx.Err() != nil {
				return urls, ctx.Err()
			}
			b.logger.Warn("skipping instrument", zap.String("instrument", instrument), zap.Error(err))
			continue
		}
		urls = append(urls, built...)
	}
	return urls, nil
}

// BuildDeployments returns request URLs covering each deployment of the
// instruments matching refDes. status is one of the Deployments* filters.
func (b *Builder) BuildDeployments(ctx context.Context, refDes, status string, opts BuildOptions) ([]string, error) {
	switch status {
	case "", DeploymentsAll, DeploymentsActive, DeploymentsInactive:
	default:
		return nil, fmt.Errorf("invalid deployment status: %s", status)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	deployments, err := b.Deployments(ctx, refDes)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, d := range deployments {
		if (status == DeploymentsActive && !d.Active()) || (status == DeploymentsInactive && d.Active()) {
			continue
		}

		o := opts
		o.Begin = d.Start
		o.End = d.Stop
		o.DeltaUnit = ""
		o.DeltaValue = 0

		b.logger.Debug("deployment",
			zap.String("refdes", d.RefDes),
			zap.Int("deployment", d.Number),
			zap.Bool("active", d.Active()))

		built, err := b.Build(ctx, d.RefDes, o)
		if err != nil {
			return urls, err
		}
		if len(built) == 0 {
			b.logger.Debug("no deployment request urls", zap.String("refdes", d.RefDes), zap.Int("deployment", d.Number))
		}
		urls = append(urls, built...)
	}
	return urls, nil
}

func (b *Builder) buildInstrument(ctx context.Context, instrument string, opts BuildOptions) ([]string, error) {
	parts, err := splitRefDes(instrument)
	if err != nil {
		return nil, err
	}

	streams, err := b.Streams(ctx, instrument)
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		b.logger.Info("no streams found", zap.String("instrument", instrument))
		return nil, nil
	}

	if opts.Stream != "" {
		var selected []StreamInfo
		for _, s := range streams {
			if s.Stream == opts.Stream {
				selected = append(selected, s)
				break
			}
		}
		if len(selected) == 0 {
			b.logger.Warn("instrument does not produce stream",
				zap.String("instrument", instrument),
				zap.String("stream", opts.Stream))
			return nil, nil
		}
		streams = selected
	}

	var urls []string
	for _, s := range streams {
		if opts.Telemetry != "" && !strings.Contains(s.Method, opts.Telemetry) {
			continue
		}
		begin, end, ok := b.window(instrument, s, opts)
		if !ok {
			continue
		}
		urls = append(urls, b.queryURL(parts, s, begin, end, opts))
	}
	return urls, nil
}

// window returns the formatted begin and end of the request for one stream
func (b *Builder) window(instrument string, s StreamInfo, opts BuildOptions) (string, string, bool) {
	log := b.logger.With(zap.String("instrument", instrument), zap.String("stream", s.Stream))

	streamBegin, err := ParseTime(s.BeginTime)
	if err != nil {
		log.Error("invalid stream begin time", zap.String("begin", s.BeginTime), zap.Error(err))
		return "", "", false
	}
	streamEnd, err := ParseTime(s.EndTime)
	if err != nil {
		log.Error("invalid stream end time", zap.String("end", s.EndTime), zap.Error(err))
		return "", "", false
	}

	var t0, t1 time.Time
	if opts.DeltaUnit != "" && opts.DeltaValue > 0 {
		t1 = streamEnd
		t0 = subtractDelta(t1, opts.DeltaUnit, opts.DeltaValue)
	} else {
		t0, t1 = streamBegin, streamEnd
		if !opts.Begin.IsZero() {
			t0 = opts.Begin
		}
		if !opts.End.IsZero() {
			t1 = opts.End
		}
	}

	ts0 := t0.UTC().Format(TimeLayout)
	ts1 := t1.UTC().Format(TimeLayout)

	if opts.TimeCheck {
		if t1.After(streamEnd) {
			log.Warn("end time exceeds stream coverage, using stream end", zap.String("end", ts1))
			ts1, t1 = s.EndTime, streamEnd
		}
		if t0.Before(streamBegin) {
			log.Warn("begin time precedes stream coverage, using stream begin", zap.String("begin", ts0))
			ts0, t0 = s.BeginTime, streamBegin
		}
		if !t0.Before(t1) {
			log.Error("invalid time range", zap.String("begin", ts0), zap.String("end", ts1))
			return "", "", false
		}
	}

	return ts0, ts1, true
}

func (b *Builder) queryURL(parts [4]string, s StreamInfo, begin, end string, opts BuildOptions) string {
	path := fmt.Sprintf("sensor/inv/%s/%s/%s-%s/%s/%s?beginDT=%s&endDT=%s&format=application/%s&limit=%d&execDPA=%t&include_provenance=%t&user=%s",
		parts[0], parts[1], parts[2], parts[3],
		s.Method, s.Stream,
		begin, end,
		opts.Format, opts.Limit, opts.ExecDPA, opts.Provenance,
		opts.User)
	if opts.Email != "" {
		path += "&email=" + opts.Email
	}
	return b.Endpoint(sensorPort, path)
}

func splitRefDes(refDes string) ([4]string, error) {
	var parts [4]string
	tokens := strings.SplitN(refDes, "-", 4)
	if len(tokens) != 4 {
		return parts, fmt.Errorf("%w: %s", ErrInvalidRefDes, refDes)
	}
	for i, t := range tokens {
		if t == "" {
			return parts, fmt.Errorf("%w: %s", ErrInvalidRefDes, refDes)
		}
		parts[i] = t
	}
	return parts, nil
}

func validDeltaUnit(unit string) bool {
	for _, u := range deltaUnits {
		if u == unit {
			return true
		}
	}
	return false
}

func subtractDelta(t time.Time, unit string, n int) time.Time {
	switch unit {
	case "years":
		return t.AddDate(-n, 0, 0)
	case "months":
		return t.AddDate(0, -n, 0)
	case "weeks":
		return t.AddDate(0, 0, -7*n)
	case "days":
		return t.AddDate(0, 0, -n)
	case "hours":
		return t.Add(-time.Duration(n) * time.Hour)
	case "minutes":
		return t.Add(-time.Duration(n) * time.Minute)
	default:
		return t.Add(-time.Duration(n) * time.Second)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Quote percent-encodes every byte except letters, digits and "_.-/" so a
// URL can be passed through a shell unchanged. NormalizeURL reverses it.
func Quote(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '_', c == '.', c == '-', c == '/':
			sb.WriteByte(c)
		default:
			sb.WriteByte('%')
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&15])
		}
	}
	return sb.String()
}

// WriteURLs writes urls as a JSON array line, or one per line when lines
// is set. Both forms are accepted by ReadURLs.
func WriteURLs(w io.Writer, urls []string, lines bool) error {
	if lines {
		for _, u := range urls {
			if _, err := fmt.Fprintln(w, u); err != nil {
				return err
			}
		}
		return nil
	}
	if urls == nil {
		urls = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(urls)
}
