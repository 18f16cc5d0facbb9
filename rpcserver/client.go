package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/eventlog"
	"github.com/quorumcontrol/ownable/ledger"
	"github.com/quorumcontrol/ownable/ownership"
)

// Client talks to a Server over http. Errors the server maps onto 403 and 404
// come back as ownership.ErrNotOwner and ledger.ErrEntityNotFound so callers
// can use errors.Is the same way they would against a local ledger.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: httpClient,
	}
}

func (c *Client) Deploy(ctx context.Context, creator, owner ownership.Identity) (common.Address, error) {
	resp := &DeployResponse{}
	err := c.do(ctx, http.MethodPost, "/entities", &DeployRequest{Creator: creator.Hex(), Owner: owner.Hex()}, resp)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(resp.Address), nil
}

func (c *Client) Owner(ctx context.Context, entity common.Address) (ownership.Identity, error) {
	resp := &OwnerResponse{}
	if err := c.do(ctx, http.MethodGet, "/entities/"+entity.Hex()+"/owner", nil, resp); err != nil {
		return ownership.Zero, err
	}
	return common.HexToAddress(resp.Owner), nil
}

func (c *Client) TransferOwnership(ctx context.Context, entity common.Address, caller, newOwner ownership.Identity) error {
	req := &TransferRequest{Caller: caller.Hex(), NewOwner: newOwner.Hex()}
	return c.do(ctx, http.MethodPost, "/entities/"+entity.Hex()+"/transfer", req, nil)
}

func (c *Client) RenounceOwnership(ctx context.Context, entity common.Address, caller ownership.Identity) error {
	return c.TransferOwnership(ctx, entity, caller, ownership.Zero)
}

func (c *Client) SupportsInterface(ctx context.Context, entity common.Address, id capability.InterfaceID) (bool, error) {
	resp := &SupportsResponse{}
	if err := c.do(ctx, http.MethodGet, "/entities/"+entity.Hex()+"/supports/"+id.String(), nil, resp); err != nil {
		return false, err
	}
	return resp.Supported, nil
}

func (c *Client) History(ctx context.Context, entity common.Address, filter eventlog.Filter) ([]*Event, error) {
	query := url.Values{}
	if filter.PreviousOwner != nil {
		query.Set("previousOwner", filter.PreviousOwner.Hex())
	}
	if filter.NewOwner != nil {
		query.Set("newOwner", filter.NewOwner.Hex())
	}
	path := "/entities/" + entity.Hex() + "/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp := &EventsResponse{}
	if err := c.do(ctx, http.MethodGet, path, nil, resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) Entities(ctx context.Context) ([]common.Address, error) {
	resp := &EntitiesResponse{}
	if err := c.do(ctx, http.MethodGet, "/entities", nil, resp); err != nil {
		return nil, err
	}
	entities := make([]common.Address, len(resp.Entities))
	for i, e := range resp.Entities {
		entities[i] = common.HexToAddress(e)
	}
	return entities, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bits, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "error encoding request")
		}
		reader = bytes.NewReader(bits)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "error creating request")
	}
	req = req.WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "error calling %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		errResp := &errorResponse{}
		if err := json.NewDecoder(resp.Body).Decode(errResp); err != nil {
			errResp.Error = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", errResp.Error, ownership.ErrNotOwner)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", errResp.Error, ledger.ErrEntityNotFound)
		default:
			return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, errResp.Error)
		}
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "error decoding response")
}
