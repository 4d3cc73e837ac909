package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/mcb/pkg/dict"
	"github.com/samsamfire/mcb/pkg/session"
)

const defaultPort = "/dev/ttyUSB0"

func main() {
	log.SetLevel(log.InfoLevel)

	profile := flag.String("profile", "serial", "transport profile: serial or tcp")
	endpoint := flag.String("endpoint", defaultPort, "serial port path or tcp host")
	dictPath := flag.String("dict", "", "dictionary XML path (required)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if *dictPath == "" {
		fmt.Fprintln(os.Stderr, "mcbctl: -dict is required")
		os.Exit(2)
	}
	d, err := loadDict(*dictPath)
	if err != nil {
		log.WithError(err).Error("mcbctl: dictionary load failed")
		os.Exit(1)
	}

	cfg := session.Config{PortOrEndpoint: *endpoint}

	var s *session.Session
	switch *profile {
	case "serial":
		s, err = session.OpenSerial(cfg)
	case "tcp":
		s, err = session.OpenTCP(cfg)
	default:
		fmt.Fprintf(os.Stderr, "mcbctl: unknown profile %q\n", *profile)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal("mcbctl: open failed")
	}
	defer s.Close()

	switch args[0] {
	case "scan":
		runScan(s)
	case "read":
		runRead(s, args[1:])
	case "write":
		runWrite(s, args[1:])
	case "regs":
		runRegs(d)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mcbctl -dict PATH [-profile serial|tcp] [-endpoint PORT] scan|read ID IDX SIDX|write ID IDX SIDX BYTES|regs")
}

func loadDict(path string) (*dict.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dict.Load(f)
}

func runRegs(d *dict.Dictionary) {
	for _, id := range d.RegIDs() {
		reg, err := d.Reg(id)
		if err != nil {
			log.WithError(err).Fatal("mcbctl: regs")
		}
		fmt.Printf("%s\t0x%04X\taccess=%d\n", reg.ID, reg.Address, reg.Access)
	}
}

func runScan(s *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	found, err := s.Scan(ctx, func(axisID uint8) {
		fmt.Printf("found axis %d\n", axisID)
	})
	if err != nil {
		log.WithError(err).Fatal("mcbctl: scan failed")
	}
	fmt.Printf("scan complete, %d axis found\n", len(found))
}

func runRead(s *session.Session, args []string) {
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	nodeID, index, subIndex := parseCoords(args)

	buf := make([]byte, 8)
	n, err := s.Read(nodeID, index, subIndex, buf, 200*time.Millisecond)
	if err != nil {
		log.WithError(err).Fatal("mcbctl: read failed")
	}
	fmt.Printf("%x\n", buf[:n])
}

func runWrite(s *session.Session, args []string) {
	if len(args) != 4 {
		usage()
		os.Exit(2)
	}
	nodeID, index, subIndex := parseCoords(args[:3])
	payload, err := parseHexBytes(args[3])
	if err != nil {
		log.WithError(err).Fatal("mcbctl: bad payload")
	}
	if err := s.Write(nodeID, index, subIndex, payload); err != nil {
		log.WithError(err).Fatal("mcbctl: write failed")
	}
}

func parseCoords(args []string) (nodeID uint8, index uint16, subIndex uint8) {
	id, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		log.WithError(err).Fatal("mcbctl: bad node id")
	}
	idx, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		log.WithError(err).Fatal("mcbctl: bad index")
	}
	sidx, err := strconv.ParseUint(args[2], 0, 8)
	if err != nil {
		log.WithError(err).Fatal("mcbctl: bad subindex")
	}
	return uint8(id), uint16(idx), uint8(sidx)
}

func parseHexBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex payload must have an even number of digits")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}
