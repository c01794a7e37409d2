package onvifadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gowvp/onvif"
	devicemodel "github.com/gowvp/onvif/device"
	m "github.com/gowvp/onvif/media"
	sdkdevice "github.com/gowvp/onvif/sdk/device"
	sdkmedia "github.com/gowvp/onvif/sdk/media"
	xsdonvif "github.com/gowvp/onvif/xsd/onvif"
	"github.com/ixugo/goddd/pkg/orm"
)

// ErrNoProfile 设备没有可用的媒体 profile
var ErrNoProfile = errors.New("onvif device has no media profile")

// Config ONVIF 设备连接参数
type Config struct {
	Addr     string
	Username string
	Password string
	Profile  string // profile token，为空时使用第一个
}

// Device ONVIF 设备包装（连接 + 心跳状态）
type Device struct {
	*onvif.Device
	KeepaliveAt orm.Time // 最后心跳时间
	IsOnline    bool
	Info        Info
}

// Info 设备信息
type Info struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Firmware     string `json:"firmware"`
}

func newHTTPClient() *http.Client {
	cli := *http.DefaultClient
	cli.Timeout = time.Millisecond * 3000
	return &cli
}

// Connect 建立 ONVIF 连接并读取设备信息
func Connect(ctx context.Context, cfg Config) (*Device, error) {
	dev, err := onvif.NewDevice(onvif.DeviceParams{
		Xaddr:      cfg.Addr,
		Username:   cfg.Username,
		Password:   cfg.Password,
		HttpClient: newHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("onvif address unreachable: %w", err)
	}

	resp, err := sdkdevice.Call_GetDeviceInformation(ctx, dev, devicemodel.GetDeviceInformation{})
	if err != nil {
		return nil, fmt.Errorf("onvif authentication failed: %w", err)
	}
	return &Device{
		Device:      dev,
		KeepaliveAt: orm.Now(),
		IsOnline:    true,
		Info: Info{
			Manufacturer: resp.Manufacturer,
			Model:        resp.Model,
			Firmware:     resp.FirmwareVersion,
		},
	}, nil
}

// ResolveStreamURI 查询 profile 并返回带认证信息的 RTSP 地址
func ResolveStreamURI(ctx context.Context, cfg Config) (string, *Device, error) {
	dev, err := Connect(ctx, cfg)
	if err != nil {
		return "", nil, err
	}

	token := cfg.Profile
	if token == "" {
		resp, err := sdkmedia.Call_GetProfiles(ctx, dev.Device, m.GetProfiles{})
		if err != nil {
			return "", nil, fmt.Errorf("get profiles: %w", err)
		}
		if len(resp.Profiles) == 0 {
			return "", nil, ErrNoProfile
		}
		token = string(resp.Profiles[0].Token)
		slog.InfoContext(ctx, "onvif profiles resolved",
			"addr", cfg.Addr,
			"profile_count", len(resp.Profiles),
			"selected", token,
		)
	}

	uri, err := getStreamURI(ctx, dev, token)
	if err != nil {
		return "", nil, err
	}
	return uri, dev, nil
}

// getStreamURI 获取 RTSP 流地址
func getStreamURI(ctx context.Context, dev *Device, profileToken string) (string, error) {
	var param m.GetStreamUri
	param.StreamSetup.Transport.Protocol = "RTSP"
	param.StreamSetup.Stream = "RTP-Unicast"
	param.ProfileToken = xsdonvif.ReferenceToken(profileToken)
	resp, err := sdkmedia.Call_GetStreamUri(ctx, dev.Device, param)
	if err != nil {
		return "", fmt.Errorf("get stream uri: %w", err)
	}
	params := dev.Device.GetDeviceParams()
	return buildPlayURL(string(resp.MediaUri.Uri), params.Username, params.Password), nil
}

func buildPlayURL(rawurl, username, password string) string {
	if username != "" && password != "" {
		return strings.Replace(rawurl, "rtsp://", fmt.Sprintf("rtsp://%s:%s@", username, password), 1)
	}
	return rawurl
}

// Discovered 局域网发现的设备
type Discovered struct {
	Addr string `json:"addr"`
}

// Discover 局域网发现 ONVIF 设备，每个设备输出一行 JSON
func Discover(ctx context.Context, w io.Writer) error {
	recv, err := onvif.AllAvailableDevicesAtSpecificEthernetInterfaces()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for {
		select {
		case dev, ok := <-recv:
			if !ok {
				return nil
			}
			addr := dev.GetDeviceParams().Xaddr
			if _, exists := seen[addr]; exists {
				continue
			}
			seen[addr] = struct{}{}
			b, _ := json.Marshal(Discovered{Addr: addr})
			_, _ = w.Write(append(b, '\n'))
		case <-ctx.Done():
			return nil
		case <-time.After(3 * time.Second):
			slog.DebugContext(ctx, "discover timeout")
			return nil
		}
	}
}
