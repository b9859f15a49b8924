// Command mcpctl is the host-side control client documented in spec.md §6:
// it connects to a Unix or TCP socket that a hypervisor relays into the
// guest's vsock channel, and speaks the same length-prefixed JSON-RPC
// framing the kernel core implements. It is ordinary hosted Go (stdlib
// net/flag), kept separate from the kernel image itself.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
)

const maxFrameLen = 1 << 20

func main() {
	var (
		network = flag.String("network", "unix", "transport to dial: unix or tcp")
		addr    = flag.String("addr", "/tmp/mcp.sock", "address to dial")
		method  = flag.String("method", "health", "JSON-RPC method: infer, health, metadata, load_model, logs")
		params  = flag.String("params", "{}", "JSON-RPC params object")
	)
	flag.Parse()

	conn, err := net.Dial(*network, *addr)
	if err != nil {
		log.Fatalf("dial %s %s: %v", *network, *addr, err)
	}
	defer conn.Close()

	var rawParams json.RawMessage
	if err := json.Unmarshal([]byte(*params), &rawParams); err != nil {
		log.Fatalf("invalid --params JSON: %v", err)
	}

	req, err := json.Marshal(struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}{Method: *method, Params: rawParams})
	if err != nil {
		log.Fatalf("encode request: %v", err)
	}

	if err := writeFrame(conn, req); err != nil {
		log.Fatalf("write frame: %v", err)
	}

	resp, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		log.Fatalf("read frame: %v", err)
	}

	fmt.Println(string(resp))
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameLen {
		return fmt.Errorf("payload too large: %d bytes", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLen {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
