package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// maxMessageSize 单条消息的上限，协议里的消息都很小
const maxMessageSize = 64 << 10

// ReadRequest 从连接里读出恰好一个 JSON 请求
func ReadRequest(conn net.Conn, timeout time.Duration) (Request, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Request{}, err
		}
	}
	var req Request
	dec := json.NewDecoder(io.LimitReader(conn, maxMessageSize))
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, req.Validate()
}

// WriteReply 写回一个 JSON 回复
func WriteReply(conn net.Conn, timeout time.Duration, reply any) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return writeJSON(conn, reply)
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// readReply 读取回复，先判断是不是 ErrorReply
func readReply(r io.Reader, out any) error {
	var raw json.RawMessage
	dec := json.NewDecoder(bufio.NewReader(io.LimitReader(r, maxMessageSize)))
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrNoReply
		}
		return fmt.Errorf("decode reply: %w", err)
	}

	var remote ErrorReply
	if err := json.Unmarshal(raw, &remote); err == nil && remote.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, remote.Error)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
