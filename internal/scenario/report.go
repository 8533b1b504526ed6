package scenario

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report collects results from concurrently running scenarios. Append is
// atomic per result; readers always see whole results.
type Report struct {
	RunID   string
	Started time.Time

	mu      sync.Mutex
	results []*Result
}

// NewReport starts an empty report.
func NewReport() *Report {
	return &Report{RunID: uuid.NewString(), Started: time.Now()}
}

// Append adds one result. Safe for concurrent use.
func (r *Report) Append(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// Results returns the results in append order.
func (r *Report) Results() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Result, len(r.results))
	copy(out, r.results)
	return out
}

// Summary counts the results.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// Summary returns the counts so far. Duration is the wall time since the
// report started.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Total: len(r.results), Duration: time.Since(r.Started)}
	for _, res := range r.results {
		if res.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// OK reports whether every result passed.
func (r *Report) OK() bool {
	s := r.Summary()
	return s.Failed == 0
}

// WriteText writes one line per scenario and a summary.
func (r *Report) WriteText(w io.Writer) error {
	results := r.Results()
	for _, res := range results {
		label := "PASS"
		if !res.Passed() {
			label = "FAIL"
		}
		if _, err := fmt.Fprintf(w, "  %s  %-50s (%s)\n", label, res.Scenario, res.Duration.Round(time.Millisecond)); err != nil {
			return err
		}
		if res.Failure != nil {
			if _, err := fmt.Fprintf(w, "        %s\n", res.Failure); err != nil {
				return err
			}
		}
	}
	s := r.Summary()
	_, err := fmt.Fprintf(w, "\nResults: %d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
	return err
}

type jsonReport struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	Summary Summary   `json:"summary"`
	Results []*Result `json:"results"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		RunID:   r.RunID,
		Started: r.Started,
		Summary: r.Summary(),
		Results: r.Results(),
	})
}

type junitSuite struct {
	XMLName   xml.Name    `xml:"testsuite"`
	Name      string      `xml:"name,attr"`
	Tests     int         `xml:"tests,attr"`
	Failures  int         `xml:"failures,attr"`
	Time      string      `xml:"time,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	Cases     []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

func seconds(d time.Duration) string { return fmt.Sprintf("%.3f", d.Seconds()) }

// WriteJUnit writes the report as a JUnit XML test suite.
func (r *Report) WriteJUnit(w io.Writer) error {
	s := r.Summary()
	suite := junitSuite{
		Name:      "pizza-e2e",
		Tests:     s.Total,
		Failures:  s.Failed,
		Time:      seconds(s.Duration),
		Timestamp: r.Started.UTC().Format(time.RFC3339),
	}
	for _, res := range r.Results() {
		c := junitCase{Name: res.Scenario, ClassName: "pizza-e2e", Time: seconds(res.Duration)}
		if res.Failure != nil {
			c.Failure = &junitFailure{
				Message: res.Failure.Detail(),
				Type:    string(res.Failure.Kind),
				Body:    res.Failure.Error(),
			}
		} else if !res.Passed() {
			c.Failure = &junitFailure{Message: res.State.String(), Type: string(DriverError)}
		}
		suite.Cases = append(suite.Cases, c)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
