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

package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/xtaci/danptun/server"
	"github.com/xtaci/danptun/storage"
	"github.com/xtaci/danptun/transport"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "ftpd"
	myApp.Usage = "chunked file-transfer service over KCP"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen,l", Value: ":29900", Usage: `listen address, eg: "IP:29900" for a single port, "IP:minport-maxport" for a range`},
		cli.StringFlag{Name: "storage,s", Value: "./storage", Usage: "directory served as the storage.DirFS root"},
		cli.StringFlag{Name: "key", Value: "it's a secrect", EnvVar: "FTPD_KEY", Usage: "pre-shared secret between service and initiator"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.BoolFlag{Name: "qpp", Usage: "enable Quantum Permutation Pads obfuscation"},
		cli.IntFlag{Name: "qpp-count", Value: 61, Usage: "number of QPP pads; prefer a prime"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal"},
		cli.IntFlag{Name: "mtu", Value: 1350, Usage: "maximum transmission unit for UDP packets"},
		cli.IntFlag{Name: "sndwnd", Value: 1024, Usage: "send window size (packets)"},
		cli.IntFlag{Name: "rcvwnd", Value: 1024, Usage: "receive window size (packets)"},
		cli.IntFlag{Name: "datashard,ds", Value: 10, Usage: "reed-solomon erasure coding data shards"},
		cli.IntFlag{Name: "parityshard,ps", Value: 3, Usage: "reed-solomon erasure coding parity shards"},
		cli.IntFlag{Name: "dscp", Value: 0, Usage: "DSCP (6 bit)"},
		cli.BoolFlag{Name: "nocomp", Usage: "disable snappy compression"},
		cli.IntFlag{Name: "sockbuf", Value: 4194304, Usage: "per-socket buffer in bytes"},
		cli.IntFlag{Name: "keepalive", Value: 10, Usage: "stored in the config only; no heartbeats are sent"},
		cli.IntFlag{Name: "session-timeout-ms", Value: 30000, Usage: "idle timeout bounding every session receive"},
		cli.IntFlag{Name: "max-clients", Value: 4, Usage: "concurrently active sessions"},
		cli.IntFlag{Name: "max-payload", Value: 1490, Usage: "DATA frame payload cap"},
		cli.StringFlag{Name: "snmplog", Value: "", Usage: "collect transport counters to file, strftime-aware path"},
		cli.IntFlag{Name: "snmpperiod", Value: 60, Usage: "snmp collect period, in seconds"},
		cli.BoolFlag{Name: "pprof", Usage: "start profiling server on :6060"},
		cli.StringFlag{Name: "log", Value: "", Usage: "log file path, default stderr"},
		cli.BoolFlag{Name: "quiet", Usage: "stored in the config only; per-session start/end lines are always logged"},
		cli.BoolFlag{Name: "tcp", Usage: "emulate a TCP connection (linux)"},
		cli.StringFlag{Name: "c", Value: "", Usage: "override flags from a JSON config file"},
	}

	myApp.Action = func(c *cli.Context) error {
		config := server.DefaultConfig()
		config.Listen = c.String("listen")
		config.StorageDir = c.String("storage")
		config.Key = c.String("key")
		config.Crypt = c.String("crypt")
		config.QPP = c.Bool("qpp")
		config.QPPCount = c.Int("qpp-count")
		config.Mode = c.String("mode")
		config.MTU = c.Int("mtu")
		config.SndWnd = c.Int("sndwnd")
		config.RcvWnd = c.Int("rcvwnd")
		config.DataShard = c.Int("datashard")
		config.ParityShard = c.Int("parityshard")
		config.DSCP = c.Int("dscp")
		config.NoComp = c.Bool("nocomp")
		config.SockBuf = c.Int("sockbuf")
		config.KeepAlive = c.Int("keepalive")
		config.SessionTimeoutMS = c.Int("session-timeout-ms")
		config.MaxClients = c.Int("max-clients")
		config.MaxPayload = c.Int("max-payload")
		config.SnmpLog = c.String("snmplog")
		config.SnmpPeriod = c.Int("snmpperiod")
		config.Pprof = c.Bool("pprof")
		config.Log = c.String("log")
		config.Quiet = c.Bool("quiet")
		config.TCP = c.Bool("tcp")

		if path := c.String("c"); path != "" {
			if err := server.ParseJSONConfig(&config, path); err != nil {
				log.Fatalf("ftpd: %v", err)
			}
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Fatalf("ftpd: opening log file: %v", err)
			}
			defer f.Close()
			log.SetOutput(f)
		}

		noDelay, interval, resend, nc := transport.ModeTuning(config.Mode)
		config.NoDelay, config.Interval, config.Resend, config.NoCongestion = noDelay, interval, resend, nc

		log.Println("version:", VERSION)
		log.Println("listening on:", config.Listen)
		log.Println("storage root:", config.StorageDir)
		log.Println("encryption:", config.Crypt)
		log.Println("mode:", config.Mode, "nodelay parameters:", config.NoDelay, config.Interval, config.Resend, config.NoCongestion)
		log.Println("sndwnd:", config.SndWnd, "rcvwnd:", config.RcvWnd)
		log.Println("compression:", !config.NoComp)
		log.Println("mtu:", config.MTU)
		log.Println("datashard:", config.DataShard, "parityshard:", config.ParityShard)
		log.Println("max clients:", config.MaxClients, "session timeout (ms):", config.SessionTimeoutMS)
		log.Println("max payload:", config.MaxPayload)
		log.Println("qpp:", config.QPP, "qpp-count:", config.QPPCount)

		if warnings, err := config.Validate(); err != nil {
			log.Fatalf("ftpd: %v", err)
		} else {
			for _, w := range warnings {
				color.Red(w)
			}
		}

		if config.QPP {
			warnings, err := transport.ValidateQPPParams(config.QPPCount, config.Key)
			if err != nil {
				log.Fatalf("ftpd: %v", err)
			}
			for _, w := range warnings {
				color.Red(w)
			}
		}

		if config.Pprof {
			go func() {
				log.Println(http.ListenAndServe(":6060", nil))
			}()
		}

		if config.SnmpLog != "" {
			go transport.SnmpLogger(config.SnmpLog, config.SnmpPeriod)
		}

		fs, err := storage.NewDirFS(config.StorageDir)
		if err != nil {
			log.Fatalf("ftpd: storage root: %v", err)
		}

		key := transport.DeriveKey(config.Key)
		block, effective := transport.SelectBlockCrypt(config.Crypt, key)
		log.Println("effective cipher:", effective)

		sup := server.NewSupervisor(config, fs)
		log.Fatal(sup.Serve(block))
		return nil
	}

	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
