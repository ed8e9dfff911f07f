package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// In a real deployment this would be configurable via flags or env vars.
	apiEndpoint = "https://k4fa8k5sjg.execute-api.us-east-1.amazonaws.com"
)

// RegistryClient handles interaction with the global flockd coordinator registry.
type RegistryClient struct {
	client *http.Client
}

// NewRegistryClient creates a new client with a default timeout.
func NewRegistryClient() *RegistryClient {
	return &RegistryClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RegistryItem represents a coordinator's registered reachability record.
type RegistryItem struct {
	Code string `json:"code"`
	Hash string `json:"hash"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Register sends a POST request to register this peer.
func (c *RegistryClient) Register(code, ip string, port int) error {
	item := RegistryItem{
		Code: code,
		IP:   ip,
		Port: port,
	}

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	url := fmt.Sprintf("%s/register", apiEndpoint)
	resp, err := c.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// Lookup sends a GET request to find a peer by code.
func (c *RegistryClient) Lookup(code string) (*RegistryItem, error) {
	url := fmt.Sprintf("%s/lookup/%s", apiEndpoint, code)
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("peer not found")
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("lookup failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var item RegistryItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	// Same anti-spoofing check FindCoordinator applies to mDNS TXT records:
	// trust the address only if the registry's stored hash matches what this
	// code actually hashes to, not just the raw partition-key match.
	if item.Hash != ComputeHash(code) {
		return nil, fmt.Errorf("registry returned a mismatched hash for code %q", code)
	}

	return &item, nil
}
