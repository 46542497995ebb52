//go:build windows

package uidsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	wmKeydown    = 0x0100
	wmSysKeydown = 0x0104
	wmQuit       = 0x0012
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetKeyboardState    = user32.NewProc("GetKeyboardState")
	procMapVirtualKeyW      = user32.NewProc("MapVirtualKeyW")
	procToUnicode           = user32.NewProc("ToUnicode")
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// в процессе может быть установлен только один перехват
var activeHook atomic.Pointer[HookSource]

var hookCallback = windows.NewCallback(func(nCode int, wParam, lParam uintptr) uintptr {
	if h := activeHook.Load(); h != nil && nCode >= 0 && (wParam == wmKeydown || wParam == wmSysKeydown) {
		h.onKey((*kbdllHookStruct)(unsafe.Pointer(lParam)))
	}
	var hook uintptr
	if h := activeHook.Load(); h != nil {
		hook = h.hook
	}
	ret, _, _ := procCallNextHookEx.Call(hook, uintptr(nCode), wParam, lParam)
	return ret
})

// HookSource перехватывает нажатия клавиш во всей системе. Нужен, когда
// окно клиента не в фокусе.
type HookSource struct {
	buffer   *terminatorBuffer
	uids     chan string
	done     chan struct{}
	threadID uint32
	hook     uintptr
	once     sync.Once
	log      zerolog.Logger
}

// NewHookSource устанавливает низкоуровневый перехват клавиатуры на
// отдельном потоке с циклом сообщений.
func NewHookSource(terminator string, log zerolog.Logger) (*HookSource, error) {
	if err := procSetWindowsHookExW.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	h := &HookSource{
		buffer: newTerminatorBuffer(terminator),
		uids:   make(chan string, 256),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "keyboard_hook").Logger(),
	}
	if !activeHook.CompareAndSwap(nil, h) {
		return nil, errors.New("перехват клавиатуры уже установлен")
	}

	ready := make(chan error, 1)
	go h.pump(ready)
	if err := <-ready; err != nil {
		activeHook.CompareAndSwap(h, nil)
		return nil, err
	}
	return h, nil
}

func (h *HookSource) pump(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h.threadID = windows.GetCurrentThreadId()
	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, hookCallback, 0, 0)
	if hook == 0 {
		ready <- fmt.Errorf("SetWindowsHookExW: %w", err)
		return
	}
	h.hook = hook
	ready <- nil

	var msg winMsg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
	procUnhookWindowsHookEx.Call(hook)
	activeHook.CompareAndSwap(h, nil)
}

func (h *HookSource) onKey(info *kbdllHookStruct) {
	chars := keyToChars(info)
	if chars == "" {
		return
	}
	uid, ok := h.buffer.Feed(chars)
	if !ok {
		return
	}
	select {
	case h.uids <- uid:
	default:
		h.log.Warn().Str("uid", uid).Msg("буфер считываний переполнен, метка пропущена")
	}
}

func keyToChars(info *kbdllHookStruct) string {
	var state [256]byte
	if r, _, _ := procGetKeyboardState.Call(uintptr(unsafe.Pointer(&state[0]))); r == 0 {
		return ""
	}
	scan, _, _ := procMapVirtualKeyW.Call(uintptr(info.VkCode), 0)
	var out [4]uint16
	n, _, _ := procToUnicode.Call(
		uintptr(info.VkCode),
		scan,
		uintptr(unsafe.Pointer(&state[0])),
		uintptr(unsafe.Pointer(&out[0])),
		uintptr(len(out)),
		0,
	)
	if int32(n) <= 0 {
		return ""
	}
	return windows.UTF16ToString(out[:n])
}

// Next реализует Source.
func (h *HookSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.done:
		return "", io.EOF
	case uid := <-h.uids:
		return uid, nil
	}
}

// Name реализует Source.
func (h *HookSource) Name() string { return "globalHook" }

// Close снимает перехват и завершает выдачу идентификаторов.
func (h *HookSource) Close() error {
	h.once.Do(func() {
		close(h.done)
		procPostThreadMessageW.Call(uintptr(h.threadID), wmQuit, 0, 0)
	})
	return nil
}
