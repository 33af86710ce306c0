package modem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/email2sms/modem"
)

func staticPorts(names ...string) modem.PortLister {
	return modem.PortListerFunc(func() ([]string, error) { return names, nil })
}

func TestListPorts(t *testing.T) {
	t.Run("Skips ports that fail to open and closes the rest", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockTransport := modem.NewMockTransport(ctrl)

		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any(), "/dev/ttyS0").Return(mockTransport, nil),
			mockTransport.EXPECT().Close().Return(nil),
			mockDialer.EXPECT().Dial(gomock.Any(), "/dev/ttyS1").Return(nil, modem.ErrDeviceUnavailable),
			mockDialer.EXPECT().Dial(gomock.Any(), "/dev/ttyUSB0").Return(mockTransport, nil),
			mockTransport.EXPECT().Close().Return(nil),
		)

		ports := modem.ListPorts(context.Background(), modem.Config{
			Dialer: mockDialer,
			Lister: staticPorts("/dev/ttyS0", "/dev/ttyS1", "/dev/ttyUSB0"),
		})

		expected := []modem.Port{{Index: 0, Name: "/dev/ttyS0"}, {Index: 2, Name: "/dev/ttyUSB0"}}
		if len(ports) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, ports)
		}
		for i := range expected {
			if ports[i] != expected[i] {
				t.Errorf("port %d: expected %v, got %v", i, expected[i], ports[i])
			}
		}
	})

	t.Run("Bounded by MaxPorts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockTransport := modem.NewMockTransport(ctrl)

		mockDialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(mockTransport, nil).Times(2)
		mockTransport.EXPECT().Close().Return(nil).Times(2)

		ports := modem.ListPorts(context.Background(), modem.Config{
			Dialer:   mockDialer,
			Lister:   staticPorts("/dev/ttyS0", "/dev/ttyS1", "/dev/ttyS2"),
			MaxPorts: 2,
		})
		if len(ports) != 2 {
			t.Errorf("expected 2 ports, got %v", ports)
		}
	})

	t.Run("Lister failure yields no ports", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		ports := modem.ListPorts(context.Background(), modem.Config{
			Dialer: modem.NewMockDialer(ctrl),
			Lister: modem.PortListerFunc(func() ([]string, error) {
				return nil, errors.New("permission denied")
			}),
		})
		if ports == nil || len(ports) != 0 {
			t.Errorf("expected an empty list, got %#v", ports)
		}
	})
}

func TestProbe(t *testing.T) {
	probe := func(mockDialer *modem.MockDialer, mockTransport *modem.MockTransport, port, reply string) []any {
		return []any{
			mockDialer.EXPECT().Dial(gomock.Any(), port).Return(mockTransport, nil),
			mockTransport.EXPECT().SetReadTimeout(time.Second).Return(nil),
			mockTransport.EXPECT().Write([]byte("AT\r")).Return(3, nil),
			mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(replyWith(reply)).AnyTimes(),
			mockTransport.EXPECT().Close().Return(nil),
		}
	}

	tests := []struct {
		name  string
		reply string
		found bool
	}{
		{"Echo and OK", "AT\r\r\nOK\r\n", true},
		{"Echo and OK with bare newlines", "AT\nOK\n", true},
		{"OK without echo", "OK\r\n", false},
		{"ERROR", "AT\r\r\nERROR\r\n", false},
		{"Silent", "", false},
		{"Echo only", "AT\r\r\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockDialer := modem.NewMockDialer(ctrl)
			mockTransport := modem.NewMockTransport(ctrl)
			gomock.InOrder(probe(mockDialer, mockTransport, "/dev/ttyS0", tt.reply)...)

			config := modem.Config{Dialer: mockDialer}
			got := modem.Probe(context.Background(), config, []modem.Port{{Index: 0, Name: "/dev/ttyS0"}})
			if found := len(got) == 1; found != tt.found {
				t.Errorf("expected found=%v, got %v", tt.found, got)
			}
		})
	}

	t.Run("One attempt per port", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockTransport := modem.NewMockTransport(ctrl)

		calls := []any{
			mockDialer.EXPECT().Dial(gomock.Any(), "/dev/ttyS0").Return(nil, modem.ErrDeviceUnavailable),
		}
		calls = append(calls, probe(mockDialer, mockTransport, "/dev/ttyUSB0", "AT\r\r\nOK\r\n")...)
		gomock.InOrder(calls...)

		got := modem.Probe(context.Background(), modem.Config{Dialer: mockDialer}, []modem.Port{
			{Index: 0, Name: "/dev/ttyS0"},
			{Index: 3, Name: "/dev/ttyUSB0"},
		})
		if len(got) != 1 || got[0].Name != "/dev/ttyUSB0" || got[0].Index != 3 {
			t.Errorf("expected only /dev/ttyUSB0, got %v", got)
		}
	})
}

func TestPortString(t *testing.T) {
	if got := (modem.Port{Index: 2, Name: "/dev/ttyUSB0"}).String(); got != "2 - /dev/ttyUSB0" {
		t.Errorf("unexpected port string %q", got)
	}
}
