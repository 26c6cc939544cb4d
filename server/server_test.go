package server

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagedb"
	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/persistence"
	"github.com/hupe1980/imagedb/testutil"
)

func startServer(t *testing.T) (*imagedb.DB, net.Conn) {
	t.Helper()

	db := imagedb.New()
	srv := New(db)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return db, conn
}

func record(seed int, uid core.UserID) persistence.Record {
	d := testutil.Descriptor(seed)
	return persistence.Record{UserID: uid, Sig: d.Sig, DC: d.DC, Res: d.Res}
}

func sendAdd(t *testing.T, conn net.Conn, rec persistence.Record) (byte, core.UserID) {
	t.Helper()
	var buf [persistence.RecordSize]byte
	rec.Marshal(&buf)
	_, err := conn.Write(append([]byte{OpAdd}, buf[:]...))
	require.NoError(t, err)

	var resp [9]byte
	_, err = io.ReadFull(conn, resp[:])
	require.NoError(t, err)
	return resp[0], core.UserID(binary.LittleEndian.Uint64(resp[1:9]))
}

func TestServer(t *testing.T) {
	t.Run("Ping", func(t *testing.T) {
		_, conn := startServer(t)

		_, err := conn.Write([]byte{OpPing})
		require.NoError(t, err)

		var resp [1]byte
		_, err = io.ReadFull(conn, resp[:])
		require.NoError(t, err)
		assert.Equal(t, byte(StatusOK), resp[0])
	})

	t.Run("AddQueryRemove", func(t *testing.T) {
		db, conn := startServer(t)

		status, uid := sendAdd(t, conn, record(1, 7))
		assert.Equal(t, byte(StatusOK), status)
		assert.Equal(t, core.UserID(7), uid)
		assert.Equal(t, 1, db.NumImages())

		// Duplicate add is rejected.
		status, _ = sendAdd(t, conn, record(1, 7))
		assert.Equal(t, byte(StatusAlreadyExists), status)

		// Query the image back.
		var kbuf [4]byte
		binary.LittleEndian.PutUint32(kbuf[:], 1)
		var rbuf [persistence.RecordSize]byte
		record(1, 0).Marshal(&rbuf)
		_, err := conn.Write(append(append([]byte{OpQuery}, kbuf[:]...), rbuf[:]...))
		require.NoError(t, err)

		var head [5]byte
		_, err = io.ReadFull(conn, head[:])
		require.NoError(t, err)
		require.Equal(t, byte(StatusOK), head[0])
		count := binary.LittleEndian.Uint32(head[1:5])
		require.Equal(t, uint32(1), count)

		var match [matchSize]byte
		_, err = io.ReadFull(conn, match[:])
		require.NoError(t, err)
		assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(match[0:8]))
		score := math.Float64frombits(binary.LittleEndian.Uint64(match[8:16]))
		assert.InDelta(t, testutil.SelfScore(testutil.Sig(1)), score, 1e-9)

		// Remove it.
		var uidBuf [8]byte
		binary.LittleEndian.PutUint64(uidBuf[:], 7)
		_, err = conn.Write(append([]byte{OpRemove}, uidBuf[:]...))
		require.NoError(t, err)

		var removeResp [1 + persistence.RecordSize]byte
		_, err = io.ReadFull(conn, removeResp[:])
		require.NoError(t, err)
		assert.Equal(t, byte(StatusOK), removeResp[0])
		removed := persistence.UnmarshalRecord(removeResp[1:])
		assert.Equal(t, core.UserID(7), removed.UserID)
		assert.Equal(t, 0, db.NumImages())

		// Removing again reports not found.
		_, err = conn.Write(append([]byte{OpRemove}, uidBuf[:]...))
		require.NoError(t, err)
		_, err = io.ReadFull(conn, removeResp[:])
		require.NoError(t, err)
		assert.Equal(t, byte(StatusNotFound), removeResp[0])
	})

	t.Run("UnknownOpcodeClosesConnection", func(t *testing.T) {
		_, conn := startServer(t)

		_, err := conn.Write([]byte{0xFF})
		require.NoError(t, err)

		var resp [1]byte
		_, err = io.ReadFull(conn, resp[:])
		require.NoError(t, err)
		assert.Equal(t, byte(StatusError), resp[0])

		// The server hangs up after an unknown opcode.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err = conn.Read(resp[:])
		assert.ErrorIs(t, err, io.EOF)
	})
}
