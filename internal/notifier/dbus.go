package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	logx "pushrelay/pkg/logx"
)

const (
	dbusDest      = "org.freedesktop.Notifications"
	dbusPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusInterface = "org.freedesktop.Notifications"

	signalActionInvoked = dbusInterface + ".ActionInvoked"
	signalClosed        = dbusInterface + ".NotificationClosed"

	// NotificationClosed reason codes.
	closedExpired   = 1
	closedDismissed = 2
)

// DBusPresenter shows notifications through the freedesktop notification
// daemon on the session bus.
type DBusPresenter struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	icons   *IconCache
	log     logx.Logger

	signals chan *dbus.Signal
	clicks  chan uint32
	ours    *lru.Cache[uint32, struct{}]

	closeOnce sync.Once
	done      chan struct{}
}

// NewDBusPresenter connects to the session bus. It fails with
// ErrUnavailable when no notification daemon owns the well-known name.
func NewDBusPresenter(appName string, icons *IconCache, log logx.Logger) (*DBusPresenter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var hasOwner bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, dbusDest).Store(&hasOwner); err != nil || !hasOwner {
		_ = conn.Close()
		if err == nil {
			err = fmt.Errorf("%s has no owner", dbusDest)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusPath),
		dbus.WithMatchInterface(dbusInterface),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribing to notification signals: %w", err)
	}

	ours, _ := lru.New[uint32, struct{}](1024)
	p := &DBusPresenter{
		conn:    conn,
		obj:     conn.Object(dbusDest, dbusPath),
		appName: appName,
		icons:   icons,
		log:     log.With(logx.String("presenter", "dbus")),
		signals: make(chan *dbus.Signal, 32),
		clicks:  make(chan uint32, 32),
		ours:    ours,
		done:    make(chan struct{}),
	}
	conn.Signal(p.signals)
	go p.signalLoop()
	return p, nil
}

func (p *DBusPresenter) Name() string { return "dbus" }

func (p *DBusPresenter) Show(ctx context.Context, n Notification) (uint32, error) {
	icon := ""
	if p.icons != nil {
		icon = p.icons.Resolve(ctx, n.Icon)
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.Urgency)),
	}
	if n.Tag != "" {
		hints["x-pushrelay-tag"] = dbus.MakeVariant(n.Tag)
	}
	timeout := int32(-1)
	if n.Timeout > 0 {
		timeout = int32(n.Timeout.Milliseconds())
	}

	var id uint32
	err := p.obj.CallWithContext(ctx, dbusInterface+".Notify", 0,
		p.appName,
		n.ReplacesID,
		icon,
		n.Title,
		n.Body,
		[]string{"default", "Open"},
		hints,
		timeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("dbus notify: %w", err)
	}
	p.ours.Add(id, struct{}{})
	return id, nil
}

func (p *DBusPresenter) Clicks() <-chan uint32 { return p.clicks }

func (p *DBusPresenter) signalLoop() {
	defer close(p.clicks)
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-p.signals:
			if !ok {
				return
			}
			p.handleSignal(sig)
		}
	}
}

func (p *DBusPresenter) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok || !p.ours.Contains(id) {
		return
	}
	switch sig.Name {
	case signalActionInvoked:
		if key, _ := sig.Body[1].(string); key != "default" {
			return
		}
		select {
		case p.clicks <- id:
		default:
			p.log.Warn("click dropped; handler busy", logx.Int64("id", int64(id)))
		}
	case signalClosed:
		reason, _ := sig.Body[1].(uint32)
		if reason == closedExpired || reason == closedDismissed {
			p.log.Debug("notification closed", logx.Int64("id", int64(id)), logx.Int64("reason", int64(reason)))
		}
		p.ours.Remove(id)
	}
}

func (p *DBusPresenter) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.RemoveSignal(p.signals)
		err = p.conn.Close()
	})
	return err
}
