package ticktock_test

import (
	"fmt"
	"log"

	ticktock "github.com/Schwaggot/ticktock"
)

func Example() {
	cfg := ticktock.DefaultConfig("") // in-memory
	cfg.Tsdb.Resolution = "s"

	db, err := ticktock.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	tags := ticktock.TagList{{Key: "host", Value: "web-1"}}
	for i, v := range []float64{1, 3, 5} {
		_ = db.Put("cpu.usage", tags, ticktock.DataPoint{
			Timestamp: ticktock.Timestamp(i * 10),
			Value:     v,
		})
	}

	fmt.Println(db.Stats().PointsWritten())
	// Output: 3
}
