package opt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteSampler posts the energy model to an external annealing service.
// The wire format is a flat JSON QUBO; the service returns (bits, energy)
// pairs. Unavailability or timeout surfaces as an error and the router falls
// back to the baseline.
type RemoteSampler struct {
	URL  string
	HTTP *http.Client
}

func NewRemoteSampler(url string) *RemoteSampler {
	return &RemoteSampler{URL: url, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

type remoteRequest struct {
	N         int                `json:"n"`
	Linear    []float64          `json:"linear"`
	Quadratic []remoteQuadEntry  `json:"quadratic"`
	Offset    float64            `json:"offset"`
	Reads     int                `json:"reads"`
}

type remoteQuadEntry struct {
	I int     `json:"i"`
	J int     `json:"j"`
	W float64 `json:"w"`
}

type remoteResponse struct {
	Samples []Sample `json:"samples"`
}

func (s *RemoteSampler) Sample(ctx context.Context, q *QUBO, reads int) ([]Sample, error) {
	req := remoteRequest{N: q.N, Linear: q.Linear, Offset: q.Offset, Reads: reads}
	for k, w := range q.Quadratic {
		req.Quadratic = append(req.Quadratic, remoteQuadEntry{I: k[0], J: k[1], W: w})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTP.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("sampler request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sampler status %d", resp.StatusCode)
	}
	var rr remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("sampler decode: %w", err)
	}
	for _, smp := range rr.Samples {
		if len(smp.Bits) != q.N {
			return nil, fmt.Errorf("sampler returned %d bits, want %d", len(smp.Bits), q.N)
		}
	}
	return rr.Samples, nil
}
