package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/battery-controller/db"
	"github.com/thatsimonsguy/battery-controller/internal/config"
	"github.com/thatsimonsguy/battery-controller/internal/env"
	"github.com/thatsimonsguy/battery-controller/internal/pinctrl"
	"github.com/thatsimonsguy/battery-controller/system/startup"
)

const capacitySlot = "meter.capacity"

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, key, configFile string
	var limit, pin int
	flag.StringVar(&dbPath, "db", "data/battery.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: show-slots, show-events, reset-capacity, reset-slot, install-service, relay-state")
	flag.IntVar(&limit, "limit", 20, "Number of events for show-events")
	flag.StringVar(&key, "key", "", "Slot key for reset-slot")
	flag.StringVar(&configFile, "config-file", "config.json", "Controller config for install-service")
	flag.IntVar(&pin, "pin", -1, "GPIO pin for relay-state")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of battery-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/battery.db')")
		fmt.Println("  -cmd string\tCommand to run: show-slots, show-events, reset-capacity, reset-slot, install-service, relay-state")
		fmt.Println("  -limit int\tNumber of events for show-events (default 20)")
		fmt.Println("  -key string\tSlot key for reset-slot")
		fmt.Println("  -config-file string\tController config for install-service (default 'config.json')")
		fmt.Println("  -pin int\tGPIO pin for relay-state")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "show-slots":
		err = db.ShowSlotsCLI(dbPath, os.Stdout)
	case "show-events":
		err = db.ShowEventsCLI(dbPath, limit, os.Stdout)
	case "reset-capacity":
		err = db.ResetSlotCLI(dbPath, capacitySlot)
	case "reset-slot":
		if key == "" {
			fmt.Println("Error: slot key is required")
			os.Exit(1)
		}
		err = db.ResetSlotCLI(dbPath, key)
	case "install-service":
		cfg := config.Config{ConfigFile: configFile}
		if err = config.Read(configFile, &cfg); err == nil {
			env.Cfg = &cfg
			err = startup.InstallService()
		}
	case "relay-state":
		if pin < 0 {
			fmt.Println("Error: pin is required")
			os.Exit(1)
		}
		var st *pinctrl.PinState
		if st, err = pinctrl.ReadPin(pin); err == nil {
			fmt.Printf("GPIO%d mode=%s pull=%s drive=%s level=%s\n", st.Pin, st.Mode, st.Pull, st.Drive, st.Level)
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
