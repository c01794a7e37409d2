package onvifadapter

import (
	"context"
	"log/slog"
	"time"

	devicemodel "github.com/gowvp/onvif/device"
	sdkdevice "github.com/gowvp/onvif/sdk/device"
	"github.com/ixugo/goddd/pkg/conc"
	"github.com/ixugo/goddd/pkg/orm"
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 70 * time.Second
)

// Keepalive 定期发送心跳，超时未响应时记录离线日志
// 阻塞直到 ctx 结束；采集失败由读帧返回，这里只负责可观测性
func (d *Device) Keepalive(ctx context.Context) {
	conc.Timer(ctx, heartbeatInterval, heartbeatInterval, func() {
		_, err := sdkdevice.Call_GetDeviceInformation(ctx, d.Device, devicemodel.GetDeviceInformation{})
		if err == nil {
			d.KeepaliveAt = orm.Now()
		}
		d.updateOnline(ctx, time.Now())
	})
}

func (d *Device) updateOnline(ctx context.Context, now time.Time) bool {
	if d.KeepaliveAt.IsZero() {
		return d.IsOnline
	}
	since := now.Sub(d.KeepaliveAt.Time)
	isOnline := since < heartbeatTimeout
	if d.IsOnline == isOnline {
		return isOnline
	}
	d.IsOnline = isOnline

	addr := d.Device.GetDeviceParams().Xaddr
	if isOnline {
		slog.InfoContext(ctx, "onvif camera back online", "addr", addr)
	} else {
		slog.WarnContext(ctx, "onvif camera offline",
			"addr", addr,
			"last_keepalive", d.KeepaliveAt.Time,
			"timeout", since,
		)
	}
	return isOnline
}
