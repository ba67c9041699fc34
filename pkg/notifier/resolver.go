package notifier

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// Resolver turns an address into a callable Target. Addresses without
// executable code resolve to NotAContract.
type Resolver interface {
	Resolve(ctx context.Context, address string) (Target, error)
}

// Directory is an in-memory address book of deployed targets.
type Directory struct {
	mu      sync.RWMutex
	targets map[string]Target
}

func NewDirectory() *Directory {
	return &Directory{targets: make(map[string]Target)}
}

// Register deploys t at address.
func (d *Directory) Register(address string, t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[strings.ToLower(address)] = t
}

// Remove undeploys address.
func (d *Directory) Remove(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, strings.ToLower(address))
}

func (d *Directory) Resolve(_ context.Context, address string) (Target, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.targets[strings.ToLower(address)]
	if !ok || t == nil {
		return nil, faults.New(faults.CodeNotAContract, "%s has no code", address)
	}
	return t, nil
}

// HTTPResolver treats an http(s) URL as a contract when it answers a HEAD request.
// Unreachable endpoints and 404/410 responses count as having no code.
type HTTPResolver struct {
	client *http.Client
}

func NewHTTPResolver(client *http.Client) *HTTPResolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPResolver{client: client}
}

func (r *HTTPResolver) Resolve(ctx context.Context, address string) (Target, error) {
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, faults.New(faults.CodeNotAContract, "%q is not an http endpoint", address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, address, nil)
	if err != nil {
		return nil, faults.New(faults.CodeNotAContract, "%v", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, faults.New(faults.CodeNotAContract, "%s unreachable: %v", address, err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, faults.New(faults.CodeNotAContract, "%s answered %d", address, resp.StatusCode)
	}
	return NewHTTPTarget(address, r.client), nil
}
