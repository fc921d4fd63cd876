package bridge

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn returns the bridge side of an in-memory socket pair plus a reader
// over the client side.
func pipeConn(t *testing.T) (net.Conn, *bufio.Reader, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, bufio.NewReader(client), client
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestConnWriteLine(t *testing.T) {
	t.Run("Line reaches the client verbatim", func(t *testing.T) {
		// Arrange
		server, reader, _ := pipeConn(t)
		conn := newConn(1, server, "203.0.113.10", 54321, "plain")

		// Act
		done := make(chan error, 1)
		go func() { done <- conn.WriteLine("PING :test\r\n") }()
		line := readLine(t, reader)

		// Assert
		require.NoError(t, <-done)
		assert.Equal(t, "PING :test\r\n", line)
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		// Arrange
		server, _, _ := pipeConn(t)
		conn := newConn(1, server, "203.0.113.10", 54321, "plain")

		// Act
		conn.Close()
		conn.Close()

		// Assert
		assert.True(t, conn.Closed())
	})
}

func TestConnSnapshot(t *testing.T) {
	t.Run("Snapshot reflects metadata updates", func(t *testing.T) {
		// Arrange
		server, _, _ := pipeConn(t)
		conn := newConn(7, server, "203.0.113.10", 54321, "tls")

		// Act
		conn.setNick("alice")
		conn.setUser("alice_example")
		conn.setAuthenticated()
		conn.setLocation("Norway", "NO", "Oslo")
		conn.messages.Add(3)
		info := conn.Snapshot()

		// Assert
		assert.Equal(t, uint64(7), info.ID)
		assert.Equal(t, "203.0.113.10", info.IP)
		assert.Equal(t, "tls", info.Transport)
		assert.Equal(t, "alice", info.Nick)
		assert.Equal(t, "alice_example", info.User)
		assert.True(t, info.Authenticated)
		assert.Equal(t, "NO", info.CountryCode)
		assert.Equal(t, "Oslo", info.City)
		assert.Equal(t, uint64(3), info.Messages)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("Register assigns monotonic IDs and counts lifetime", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()
		s1, _, _ := pipeConn(t)
		s2, _, _ := pipeConn(t)

		// Act
		c1 := registry.Register(s1, "203.0.113.10", 1000, "plain")
		c2 := registry.Register(s2, "203.0.113.20", 1001, "plain")

		// Assert
		assert.Less(t, c1.ID, c2.ID)
		assert.Equal(t, 2, registry.Count())
		assert.Equal(t, uint64(2), registry.Total())
	})

	t.Run("Remove keeps the lifetime total", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()
		s1, _, _ := pipeConn(t)
		conn := registry.Register(s1, "203.0.113.10", 1000, "plain")

		// Act
		registry.Remove(conn.ID)

		// Assert
		assert.Equal(t, 0, registry.Count())
		assert.Equal(t, uint64(1), registry.Total())
		assert.Nil(t, registry.Get(conn.ID))
	})

	t.Run("Kick writes the kill line and closes", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()
		server, reader, _ := pipeConn(t)
		conn := registry.Register(server, "203.0.113.10", 1000, "plain")

		// Act
		lines := make(chan string, 1)
		go func() {
			line, _ := reader.ReadString('\n')
			lines <- line
		}()
		kicked := registry.Kick(conn.ID, "operator request")

		// Assert
		assert.True(t, kicked)
		select {
		case line := <-lines:
			assert.Contains(t, line, "killed by operator (operator request)")
		case <-time.After(time.Second):
			t.Fatal("kill line never arrived")
		}
		assert.True(t, conn.Closed())
	})

	t.Run("Kick of unknown ID reports false", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()

		// Act & Assert
		assert.False(t, registry.Kick(42, "whatever"))
	})

	t.Run("KickByIP closes every matching connection", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()
		s1, r1, _ := pipeConn(t)
		s2, r2, _ := pipeConn(t)
		s3, _, _ := pipeConn(t)
		c1 := registry.Register(s1, "203.0.113.10", 1000, "plain")
		c2 := registry.Register(s2, "203.0.113.10", 1001, "tls")
		c3 := registry.Register(s3, "203.0.113.20", 1002, "plain")

		drain := func(r *bufio.Reader) {
			go func() { r.ReadString('\n') }()
		}
		drain(r1)
		drain(r2)

		// Act
		kicked := registry.KickByIP("203.0.113.10", "banned")

		// Assert
		assert.Equal(t, 2, kicked)
		assert.Eventually(t, func() bool {
			return c1.Closed() && c2.Closed()
		}, time.Second, 10*time.Millisecond)
		assert.False(t, c3.Closed())
	})

	t.Run("Broadcast reaches every live connection", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()
		s1, r1, _ := pipeConn(t)
		s2, r2, _ := pipeConn(t)
		registry.Register(s1, "203.0.113.10", 1000, "plain")
		registry.Register(s2, "203.0.113.20", 1001, "plain")

		received := make(chan string, 2)
		for _, r := range []*bufio.Reader{r1, r2} {
			go func(r *bufio.Reader) {
				line, _ := r.ReadString('\n')
				received <- line
			}(r)
		}

		// Act
		sent := registry.Broadcast("servers restart in five minutes")

		// Assert
		assert.Equal(t, 2, sent)
		for i := 0; i < 2; i++ {
			select {
			case line := <-received:
				assert.True(t, strings.Contains(line, "servers restart in five minutes"))
			case <-time.After(time.Second):
				t.Fatal("broadcast never arrived")
			}
		}
	})

	t.Run("List snapshots every connection", func(t *testing.T) {
		// Arrange
		registry := NewRegistry()
		s1, _, _ := pipeConn(t)
		registry.Register(s1, "203.0.113.10", 1000, "plain")

		// Act
		infos := registry.List()

		// Assert
		require.Len(t, infos, 1)
		assert.Equal(t, "203.0.113.10", infos[0].IP)
	})
}
