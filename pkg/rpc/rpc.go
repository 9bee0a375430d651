// Package rpc probes the public endpoints of the required network. It is used
// by the CLI, which runs without a wallet.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"weebdomains/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ProbeTimeout = 10 * time.Second

var ErrNoEndpoint = errors.New("no reachable rpc endpoint")

// ProbeEndpoint dials url, reads its chain id and latest header, and compares
// the chain id with expected.
func ProbeEndpoint(ctx context.Context, url string, expected *big.Int) models.CheckResult {
	res := models.CheckResult{Endpoint: url, Status: "error"}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	start := time.Now()
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		res.Error = fmt.Sprintf("failed to get chain id: %v", err)
		return res
	}
	res.ChainID = id.String()

	if _, err := client.HeaderByNumber(ctx, nil); err != nil {
		res.Error = fmt.Sprintf("failed to get latest header: %v", err)
		return res
	}
	res.LatencyMS = time.Since(start).Milliseconds()

	if expected != nil && id.Cmp(expected) != 0 {
		res.Error = fmt.Sprintf("chain id mismatch, expected %s", expected)
		return res
	}
	res.Status = "ok"
	return res
}

// DialFirst returns a client for the first url that answers with the
// expected chain id, along with the urls that failed before it.
func DialFirst(ctx context.Context, urls []string, expected *big.Int) (*ethclient.Client, []string, error) {
	var failed []string
	lastErr := ErrNoEndpoint
	for _, url := range urls {
		client, err := dialChecked(ctx, url, expected)
		if err != nil {
			failed = append(failed, url)
			lastErr = err
			continue
		}
		return client, failed, nil
	}
	return nil, failed, lastErr
}

func dialChecked(ctx context.Context, url string, expected *big.Int) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	if expected != nil {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		if id.Cmp(expected) != 0 {
			client.Close()
			return nil, fmt.Errorf("%s serves chain %s, expected %s", url, id, expected)
		}
	}
	return client, nil
}

// HasCode reports whether a contract is deployed at address.
func HasCode(ctx context.Context, client *ethclient.Client, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid contract address %q", address)
	}
	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// FetchGasPrice returns the suggested gas price from the first url that
// answers, along with the urls that failed.
func FetchGasPrice(ctx context.Context, urls []string) (*big.Int, []string, error) {
	var failed []string
	lastErr := ErrNoEndpoint
	for _, url := range urls {
		price, err := gasPrice(ctx, url)
		if err != nil {
			failed = append(failed, url)
			lastErr = err
			continue
		}
		return price, failed, nil
	}
	return nil, failed, lastErr
}

func gasPrice(ctx context.Context, url string) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.SuggestGasPrice(ctx)
}
