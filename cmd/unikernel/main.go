// Command unikernel is the bootable core: it wires together every internal
// package into the boot sequence described in spec.md §2/§6. _start (in
// boot_amd64.s) establishes a stack and calls bootMain; bootMain never
// returns.
package main

import (
	"github.com/gfpw/microkernelia/internal/ai"
	"github.com/gfpw/microkernelia/internal/arch/amd64"
	"github.com/gfpw/microkernelia/internal/layout"
	"github.com/gfpw/microkernelia/internal/logring"
	"github.com/gfpw/microkernelia/internal/memory/frame"
	"github.com/gfpw/microkernelia/internal/memory/mmu"
	"github.com/gfpw/microkernelia/internal/rpc"
	"github.com/gfpw/microkernelia/internal/sched"
	"github.com/gfpw/microkernelia/internal/serial"
	"github.com/gfpw/microkernelia/internal/transport"
	"github.com/gfpw/microkernelia/internal/virtio/vfs"
	"github.com/gfpw/microkernelia/internal/virtio/vsock"
)

const panicMessage = "[PANIC] Kernel panic!"

// _start is declared here so the Go compiler knows its signature; its body
// lives in boot_amd64.s.
func _start()

var (
	logRing    logring.Ring
	serialPort *serial.Port
	canary     uint64

	frameAlloc frame.Allocator
	pageTables mmu.MMU

	vsockDriver *vsock.Driver
	fsDriver    *vfs.Driver
	aiAdapter   ai.Adapter
	router      *rpc.Router
	scheduler   sched.Scheduler

	frameBuf  [layout.MaxFrameLen + 4]byte
	recvBuf   [layout.MaxFrameLen]byte
	recvBufPh uintptr
)

// bootMain runs the sequence from spec.md §2: MMU → drivers → transport →
// RPC router → scheduler, then hands off to Run forever.
func bootMain() {
	serialPort = serial.New(&logRing)
	serialPort.WriteString("\n[unikernel-ai] Kernel booting...")

	mmu.InitStackCanary(&canary)

	pageTables = *mmu.New()
	pageTables.Init()
	pageTables.LoadCR3()
	text := mmu.Section{Start: layout.KernelVirtBase, End: layout.KernelVirtBase + 2*1024*1024}
	data := mmu.Section{Start: layout.KernelVirtBase + 2*1024*1024, End: layout.KernelVirtBase + 4*1024*1024}
	bss := mmu.Section{Start: layout.KernelVirtBase + 4*1024*1024, End: layout.KernelVirtBase + 6*1024*1024}
	stack := mmu.Section{Start: layout.KernelVirtBase + 6*1024*1024, End: layout.KernelVirtBase + 8*1024*1024}
	// The stack is mapped 4 KiB at a time (rather than left as Init's 2 MiB
	// huge entries) so InsertGuardPage below can clear exactly one page
	// instead of the whole 2 MiB region it sits in.
	pageTables.MapStack4K(stack.Start, stack.End-stack.Start)
	pageTables.ProtectSections(text, data, bss, stack)
	pageTables.InsertGuardPage(stack.End - layout.GuardPageSize)

	vsockDriver = vsock.New(&logRing)
	vsockDriver.Init(&pageTables)

	fsDriver = vfs.New(&logRing)
	fsDriver.Init(&pageTables)

	serialPort.WriteString("[mcp-vsock] Transporte MCP/vsock inicializado")

	router = rpc.New(&aiAdapter, fsDriver, &logRing)
	serialPort.WriteString("[mcp] Servidor MCP inicializado")

	recvBufPh = bufAddr(&recvBuf)
	vsockDriver.PostRecvBuffer(recvBufPh, uint32(len(recvBuf)))

	scheduler.Spawn(logTask, "log_task")
	scheduler.Spawn(selftestTask, "selftest")
	scheduler.Spawn(mcpServerTask, "mcp_server")

	scheduler.Run()
}

// logTask drains the log ring out the serial port every round; it must
// never block, matching spec.md §4.9's requirement for the immortal slot.
func logTask() {
	checkCanary()
	var buf [256]byte
	n := logRing.Drain(buf[:])
	// Straight to the port: serialPort.Write would append the drained
	// bytes to the ring again.
	for _, b := range buf[:n] {
		amd64.Outb(layout.SerialPort, b)
	}
}

// selftestTask supplements the original's ejemplo demo task (spec.md §4):
// it exercises the frame allocator once at boot and logs the result, giving
// an operator watching the serial console immediate confirmation that the
// memory core came up sane.
func selftestTask() {
	phys, ok := frameAlloc.Alloc()
	if !ok {
		serialPort.WriteString("[selftest] frame allocator exhausted")
		return
	}
	frameAlloc.Free(phys)
	serialPort.WriteString("[selftest] memory core ok")
}

// mcpServerTask is the long-running control task, mirroring mcp_server_loop.
// The scheduler marks every task except log_task finished once its entry
// returns, so this one never returns: it loops over framing
// read/dispatch/write cycles and runs logTask before each cycle so the log
// ring keeps draining while it serves.
func mcpServerTask() {
	for {
		logTask()
		payload, ok := transport.ReadFrame(vsockAdapter{vsockDriver}, recvBuf[:])
		if !ok {
			continue
		}
		resp, ok := router.Dispatch(payload)
		if !ok {
			continue
		}
		transport.WriteFrame(vsockAdapter{vsockDriver}, resp, frameBuf[:])
	}
}

// vsockAdapter narrows vsock.Driver's physical-address-based Send/Recv down
// to the plain byte-slice shape internal/transport expects; the adapter
// owns the one static receive buffer's address so transport never has to
// know about physical addressing at all.
type vsockAdapter struct {
	d *vsock.Driver
}

func (a vsockAdapter) Send(data []byte) bool {
	addr := bufAddr(&frameBuf)
	copy(frameBuf[:], data)
	return a.d.Send(addr, data)
}

func (a vsockAdapter) Recv(buf []byte) (int, bool) {
	addr, length, ok := a.d.Recv()
	if !ok {
		return 0, false
	}
	_ = addr // the driver already delivered into recvBuf via PostRecvBuffer
	// The consumed descriptor must be re-posted before the next round, or
	// the device has nowhere left to deliver the following request into.
	a.d.PostRecvBuffer(recvBufPh, uint32(len(recvBuf)))
	return int(length), true
}

// panicHalt implements spec.md §6's panic contract: log the fixed message
// and halt forever. Go's runtime panic path is unavailable in a freestanding
// binary, so every fallible internal routine returns ok bool/err string
// instead of panicking; this function is reserved for the invariant
// violations spec.md §7 calls genuinely fatal (guard page trip, NX breach,
// canary mismatch).
func panicHalt() {
	logRing.WriteString(panicMessage)
	serialPort.WriteString(panicMessage)
	for {
		halt()
	}
}

func checkCanary() {
	if !mmu.CheckStackCanary(&canary) {
		panicHalt()
	}
}
