package xmrwallet

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// Init points the engine at a node, runs one refresh and starts background
// refresh. A local node is trusted.
func (w *Wallet) Init(ctx context.Context, daemonAddress string, upperTxSizeLimit uint64) error {
	if err := w.initEngine(ctx, daemonAddress, upperTxSizeLimit); err != nil {
		return err
	}
	err := w.Refresh(ctx)
	w.StartRefresh()
	return err
}

// InitAsync is Init without the synchronous first refresh.
func (w *Wallet) InitAsync(ctx context.Context, daemonAddress string, upperTxSizeLimit uint64) error {
	if err := w.initEngine(ctx, daemonAddress, upperTxSizeLimit); err != nil {
		return err
	}
	w.StartRefresh()
	return nil
}

func (w *Wallet) initEngine(ctx context.Context, daemonAddress string, upperTxSizeLimit uint64) error {
	w.clearStatus()
	err := guardEngine(func() error {
		return w.engine.Init(ctx, daemonAddress, upperTxSizeLimit)
	})
	if err != nil {
		w.log.Error("error initializing wallet", "daemon", daemonAddress, "err", err)
		return w.fail(lifecycleError(err))
	}
	if isAddressLocal(ctx, daemonAddress) {
		w.SetTrustedDaemon(true)
	}
	return nil
}

func (w *Wallet) ConnectToDaemon(ctx context.Context) error {
	if w.Connected(ctx) {
		w.clearStatus()
		return nil
	}
	return w.fail(newError(KindConnectivity, nil, "Error connecting to daemon at %s", w.engine.DaemonAddress()))
}

func (w *Wallet) Connected(ctx context.Context) bool {
	ok := false
	_ = guardEngine(func() error {
		ok = w.engine.CheckConnection(ctx)
		return nil
	})
	return ok
}

// isAddressLocal reports whether a node address resolves to a loopback or
// private network address.
func isAddressLocal(ctx context.Context, address string) bool {
	host := address
	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil {
			return false
		}
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return false
	}
	for _, a := range addrs {
		if !a.IP.IsLoopback() && !a.IP.IsPrivate() {
			return false
		}
	}
	return true
}
