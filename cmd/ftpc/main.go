// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command ftpc is the initiator-side CLI: one-shot "get" (read session) or
// "put" (write session) against a running ftpd, mirroring kcptun's
// client/main.go dial/tuning setup but driving ftpclient.Client instead of
// an smux byte tunnel.
package main

import (
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/xtaci/qpp"

	"github.com/xtaci/danptun/ftpclient"
	"github.com/xtaci/danptun/transport"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "ftpc"
	myApp.Usage = "initiate a chunked file transfer against an ftpd"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{Name: "op", Value: "get", Usage: `"get" (read session) or "put" (write session)`},
		cli.StringFlag{Name: "remoteaddr,r", Value: "vps:29900", Usage: `ftpd address, eg: "IP:29900"`},
		cli.StringFlag{Name: "file", Usage: "opaque file identifier on the service"},
		cli.StringFlag{Name: "local", Usage: "local path to read from (put) or write to (get)"},
		cli.IntFlag{Name: "chunksize", Value: 1024, Usage: "bytes requested per DATA frame from the local side"},
		cli.IntFlag{Name: "timeout-ms", Value: 30000, Usage: "per-frame receive timeout"},
		cli.IntFlag{Name: "max-retries", Value: 5, Usage: "DATA frame retransmit attempts before TRANSFER_FAILED"},
		cli.StringFlag{Name: "key", Value: "it's a secrect", EnvVar: "FTPD_KEY", Usage: "pre-shared secret between client and service"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.BoolFlag{Name: "qpp", Usage: "enable Quantum Permutation Pads obfuscation"},
		cli.IntFlag{Name: "qpp-count", Value: 61, Usage: "number of QPP pads; prefer a prime"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal"},
		cli.IntFlag{Name: "mtu", Value: 1350, Usage: "maximum transmission unit for UDP packets"},
		cli.IntFlag{Name: "sndwnd", Value: 128, Usage: "send window size (packets)"},
		cli.IntFlag{Name: "rcvwnd", Value: 512, Usage: "receive window size (packets)"},
		cli.IntFlag{Name: "datashard,ds", Value: 10, Usage: "reed-solomon erasure coding data shards"},
		cli.IntFlag{Name: "parityshard,ps", Value: 3, Usage: "reed-solomon erasure coding parity shards"},
		cli.IntFlag{Name: "dscp", Value: 0, Usage: "DSCP (6 bit)"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable snappy compression"},
		cli.IntFlag{Name: "sockbuf", Value: 4194304, Usage: "per-socket buffer in bytes"},
		cli.StringFlag{Name: "log", Value: "", Usage: "log file path, default stderr"},
	}

	myApp.Action = func(c *cli.Context) error {
		if c.String("file") == "" || c.String("local") == "" {
			return cli.NewExitError("ftpc: -file and -local are both required", 1)
		}

		if logPath := c.String("log"); logPath != "" {
			f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Fatalf("ftpc: opening log file: %v", err)
			}
			defer f.Close()
			log.SetOutput(f)
		}

		cfg := ftpclient.TransferConfig{
			FileID:     []byte(c.String("file")),
			ChunkSize:  c.Int("chunksize"),
			Timeout:    time.Duration(c.Int("timeout-ms")) * time.Millisecond,
			MaxRetries: c.Int("max-retries"),
		}
		if warnings, err := cfg.Validate(); err != nil {
			log.Fatalf("ftpc: %v", err)
		} else {
			for _, w := range warnings {
				color.Red(w)
			}
		}

		key := transport.DeriveKey(c.String("key"))
		block, effective := transport.SelectBlockCrypt(c.String("crypt"), key)
		log.Println("effective cipher:", effective)

		if c.Bool("qpp") {
			warnings, err := transport.ValidateQPPParams(c.Int("qpp-count"), c.String("key"))
			if err != nil {
				log.Fatalf("ftpc: %v", err)
			}
			for _, w := range warnings {
				color.Red(w)
			}
		}

		sess, err := transport.Dial(c.String("remoteaddr"), block, c.Int("datashard"), c.Int("parityshard"))
		if err != nil {
			return errors.Wrap(err, "ftpc: dial")
		}

		noDelay, interval, resend, nc := transport.ModeTuning(c.String("mode"))
		transport.ApplyTuning(sess, transport.Tuning{
			NoDelay: noDelay, Interval: interval, Resend: resend, NoCongestion: nc,
			MTU: c.Int("mtu"), SndWnd: c.Int("sndwnd"), RcvWnd: c.Int("rcvwnd"),
			SockBuf: c.Int("sockbuf"), DSCP: c.Int("dscp"),
		})

		var conn net.Conn = sess
		if !c.Bool("nocomp") {
			conn = transport.NewCompStream(sess)
		}
		if c.Bool("qpp") {
			pad := qpp.NewQPP([]byte(c.String("key")), uint16(c.Int("qpp-count")))
			conn = transport.NewQPPPort(conn, pad, []byte(c.String("key")))
		}

		cli2, status := ftpclient.Init(conn)
		if status != ftpclient.StatusOK {
			log.Fatalf("ftpc: client init failed: %v", status)
		}
		defer cli2.Deinit()

		switch c.String("op") {
		case "put":
			return doPut(cli2, cfg, c.String("local"))
		case "get":
			return doGet(cli2, cfg, c.String("local"))
		default:
			return cli.NewExitError("ftpc: -op must be \"get\" or \"put\"", 1)
		}
	}

	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func doPut(c *ftpclient.Client, cfg ftpclient.TransferConfig, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "ftpc: open local file")
	}
	defer f.Close()

	src := ftpclient.SourceFunc(func(offset int64, buf []byte) (int, bool, error) {
		n, err := f.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return n, false, err
		}
		// Probe one byte past this chunk to decide whether more data follows,
		// the same look-ahead the service's read session uses.
		var probe [1]byte
		pn, _ := f.ReadAt(probe[:], offset+int64(n))
		return n, pn > 0, nil
	})

	n, err := c.Transmit(cfg, src)
	if err != nil {
		return err
	}
	log.Printf("ftpc: put complete, %d bytes sent", n)
	return nil
}

func doGet(c *ftpclient.Client, cfg ftpclient.TransferConfig, localPath string) error {
	f, err := os.OpenFile(localPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "ftpc: create local file")
	}
	defer f.Close()

	sink := ftpclient.SinkFunc(func(offset int64, data []byte, more bool) error {
		_, err := f.WriteAt(data, offset)
		return err
	})

	n, err := c.Receive(cfg, sink)
	if err != nil {
		return err
	}
	log.Printf("ftpc: get complete, %d bytes received", n)
	return nil
}
