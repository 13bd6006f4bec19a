package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jkbrsn/vigil"
)

func main() {
	// Create the rescheduler - it runs the sensors without holding a goroutine between pokes
	manager := vigil.NewRescheduler(8)
	defer manager.Close()

	sensors := make([]*vigil.Sensor, 0)
	for _, add := range []func() (*vigil.Sensor, error){httpBinSensor, dnsSensor, timeSensor} {
		s, err := add()
		if err != nil {
			fmt.Printf("Error creating sensor: %v\n", err)
			return
		}
		sensors = append(sensors, s)
	}

	for _, s := range sensors {
		if err := manager.Add(s); err != nil {
			fmt.Printf("Error adding sensor: %v\n", err)
			return
		}
	}

	// Consume results until every sensor has finished
	for range sensors {
		res, ok := <-manager.Results()
		if !ok {
			fmt.Println("Channel closed")
			break
		}
		fmt.Printf("Result of %v\n", res.Outcome.TaskName)
		fmt.Printf("  Run ID:  %v\n", res.Outcome.RunID)
		fmt.Printf("  State:   %v\n", res.Outcome.State)
		fmt.Printf("  Pokes:   %v\n", res.Outcome.Pokes)
		fmt.Printf("  Elapsed: %v\n", res.Outcome.Elapsed)
		if res.Err != nil {
			fmt.Printf("  Error:   %v\n", res.Err)
		}
		fmt.Println()
	}
}

func httpBinSensor() (*vigil.Sensor, error) {
	u := &url.URL{Scheme: "https", Host: "httpbin.org", Path: "/status/200"}
	return vigil.NewSensor(
		"httpbin up",
		vigil.NewHTTPSensor(u, http.MethodGet),
		vigil.WithMode(vigil.ModeReschedule),
		vigil.WithPokeInterval(5*time.Second),
		vigil.WithTimeout(time.Minute),
	)
}

func dnsSensor() (*vigil.Sensor, error) {
	return vigil.NewSensor(
		"example.com resolves",
		&vigil.DNSSensor{Hook: vigil.NewDNSResolver("1.1.1.1:53", "8.8.8.8:53"), Host: "example.com"},
		vigil.WithMode(vigil.ModeReschedule),
		vigil.WithPokeInterval(4*time.Second),
		vigil.WithTimeout(time.Minute),
	)
}

func timeSensor() (*vigil.Sensor, error) {
	u := &url.URL{
		Scheme:   "https",
		Host:     "www.timeapi.io",
		Path:     "/api/time/current/zone",
		RawQuery: "timeZone=Europe%2FLondon",
	}
	return vigil.NewSensor(
		"london time is DST",
		vigil.NewHTTPSensor(u, http.MethodGet,
			vigil.WithResponseCheck(vigil.JSONFieldEquals(true, "dstActive")),
		),
		vigil.WithMode(vigil.ModeReschedule),
		vigil.WithPokeInterval(6*time.Second),
		vigil.WithTimeout(30*time.Second),
		vigil.WithSoftFail(true),
	)
}
