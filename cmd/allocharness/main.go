// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the entry point for the allocation harness
// demo application.
//
// This binary wires together every component of the module into one
// runnable experiment: a fixed number of tenants, each fronted by a
// Redis-backed reference CacheEndpoint, driven by a synthetic
// read/write workload, with a background allocation controller that
// periodically re-derives each tenant's miss-ratio curve and
// redistributes cache, backing-store RCU/WCU, and network bandwidth
// across them under the chosen fairness policy.
//
// For a detailed description of each moving part, see SPEC_FULL.md.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hopperalloc/internal/alloc"
	"hopperalloc/internal/config"
	"hopperalloc/internal/controller"
	"hopperalloc/internal/endpoint"
	"hopperalloc/internal/epoch"
	"hopperalloc/internal/latency"
	"hopperalloc/internal/resrc"
	"hopperalloc/internal/tenant"
	"hopperalloc/internal/workload"
)

func main() {
	numTenants := flag.Int("num_tenants", 2, "Number of tenants to allocate across")
	redisAddrs := flag.String("redis_addrs", "localhost:6379", "Comma-separated Redis addresses, one per tenant (the last address repeats if fewer than num_tenants)")
	baseResrcStr := flag.String("base_resrc", "64Mi,1000,1000,100M", "Baseline resource vector shared by every tenant: cache_size,db_rcu,db_wcu,net_bw")
	initResrcStr := flag.String("init_resrc", "", "Initial resource vector; defaults to base_resrc if empty")
	workloadStr := flag.String("workload", "k=24,v=100,n=1000000,w=0.1,d=zipf:0.99", "Workload grammar string applied to every tenant (see workload.ParseStaticWorkload)")

	policyName := flag.String("policy", "drf", "Allocation policy: drf, hare, or memshare")
	applyModeName := flag.String("apply_mode", "direct", "Apply mode: direct, boost, or gradual")

	scheduleInterval := flag.Duration("schedule_interval", 30*time.Second, "Interval between allocation rounds")
	scheduleCount := flag.Int("schedule_count", 10, "Number of allocation rounds to run before exiting (0 = run until interrupted)")
	statWindow := flag.Duration("stat_window", 5*time.Second, "How long before each allocation timestamp to open the statistics window")
	pollFreq := flag.Duration("poll_freq", time.Second, "Poll interval for boost/gradual warm-cache checks")
	applyDeadline := flag.Duration("apply_deadline", 20*time.Second, "Budget for a boost/gradual apply round before falling back to the last pending target")

	mrcSalt := flag.Float64("mrc_salt", 0, "Additive smoothing applied to every derived miss ratio")
	smoothingWindow := flag.Int("smoothing_window", 1, "Number of statistics windows aggregated before deriving an MRC/demand")
	applyThreshold := flag.Float64("alloc_apply_threshold", 0, "Minimum improve_ratio gain required to apply a new allocation; 0 disables the gate")
	cacheDeltaGranularity := flag.Uint64("cache_delta_granularity", 1<<20, "Minimum cache-size step the bisection and redistribution passes consider significant")
	maxCacheRelocEachRound := flag.Uint64("max_cache_reloc_each_round", 16<<20, "Cache bytes a gradual apply may move in a single round")

	epochDuration := flag.Duration("epoch_duration", time.Second, "Epoch length for throughput/latency reporting")
	countLimit := flag.Int64("count_limit", 0, "Stop the load generators after this many total ops; 0 = unbounded")
	durationLimit := flag.Duration("duration_limit", 0, "Stop the load generators after this much wall time; 0 = unbounded")
	dataCSVPath := flag.String("data_csv", "data.csv", "Path to the per-epoch throughput/latency CSV")
	latHistCSVPath := flag.String("lat_hist_csv", "lat_hist.csv", "Path to the per-epoch base64 HDR histogram blob CSV")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")

	flag.Parse()

	cfg := config.DefaultAllocConfig()
	cfg.MRCSalt = *mrcSalt
	cfg.SmoothingWindow = *smoothingWindow
	cfg.AllocApplyThreshold = *applyThreshold
	cfg.CacheDeltaGranularity = *cacheDeltaGranularity
	cfg.MaxCacheRelocEachRound = *maxCacheRelocEachRound
	cfg.BoostPollFreq = *pollFreq

	baseResrc, err := resrc.ParseVector(*baseResrcStr)
	if err != nil {
		log.Fatalf("invalid base_resrc: %v", err)
	}
	initResrc := baseResrc
	if *initResrcStr != "" {
		initResrc, err = resrc.ParseVector(*initResrcStr)
		if err != nil {
			log.Fatalf("invalid init_resrc: %v", err)
		}
	}

	wl, err := workload.ParseStaticWorkload(*workloadStr, nil, false)
	if err != nil {
		log.Fatalf("invalid workload: %v", err)
	}

	policy, err := parsePolicy(*policyName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	applyMode, err := parseApplyMode(*applyModeName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	addrs := splitAndPad(*redisAddrs, *numTenants)

	dataFile, err := os.Create(*dataCSVPath)
	if err != nil {
		log.Fatalf("create data csv: %v", err)
	}
	defer dataFile.Close()
	latHistFile, err := os.Create(*latHistCSVPath)
	if err != nil {
		log.Fatalf("create lat_hist csv: %v", err)
	}
	defer latHistFile.Close()

	ring := latency.NewRing(64, latHistFile, int64(epochDuration.Seconds()))
	epochMgr := epoch.NewManager(ring, dataFile, epochDuration.Seconds(), *countLimit, durationLimit.Seconds())

	tenants := make([]*tenant.Tenant, *numTenants)
	endpoints := make([]endpoint.CacheEndpoint, *numTenants)
	for i := 0; i < *numTenants; i++ {
		ep := endpoint.NewRedisEndpoint(addrs[i], fmt.Sprintf("tenant-%d", i))
		endpoints[i] = ep
		tenants[i] = tenant.New(strconv.Itoa(i), ep, baseResrc, initResrc, *mrcSalt, cfg)
	}
	ctrl := controller.New(tenants, cfg, policy, applyMode)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go runLoadGenerator(ctx, &wg, ep, wl, ring, epochMgr, i)
	}

	wg.Add(1)
	go runEpochTicker(ctx, &wg, epochMgr, *epochDuration)

	wg.Add(1)
	go runAllocationSchedule(ctx, &wg, ctrl, *scheduleInterval, *scheduleCount, *statWindow, *pollFreq, *applyDeadline)

	<-stop
	fmt.Println("\nShutting down allocation harness...")
	cancel()
	wg.Wait()
	fmt.Println("Allocation harness gracefully stopped.")
}

func parsePolicy(s string) (alloc.Policy, error) {
	switch strings.ToLower(s) {
	case "drf":
		return alloc.PolicyDRF, nil
	case "hare":
		return alloc.PolicyHARE, nil
	case "memshare":
		return alloc.PolicyMemshare, nil
	default:
		return 0, fmt.Errorf("unknown policy %q (want drf, hare, or memshare)", s)
	}
}

func parseApplyMode(s string) (controller.ApplyMode, error) {
	switch strings.ToLower(s) {
	case "direct":
		return controller.ModeDirect, nil
	case "boost":
		return controller.ModeBoost, nil
	case "gradual":
		return controller.ModeGradual, nil
	default:
		return 0, fmt.Errorf("unknown apply_mode %q (want direct, boost, or gradual)", s)
	}
}

func splitAndPad(csv string, n int) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(parts) {
			out[i] = strings.TrimSpace(parts[i])
		} else {
			out[i] = strings.TrimSpace(parts[len(parts)-1])
		}
	}
	return out
}

// runLoadGenerator drives one tenant's synthetic workload against its
// endpoint until the context is canceled, recording each request's
// latency into the shared histogram ring.
func runLoadGenerator(ctx context.Context, wg *sync.WaitGroup, ep endpoint.CacheEndpoint, wl workload.StaticWorkload, ring *latency.Ring, epochMgr *epoch.Manager, tenantIdx int) {
	defer wg.Done()

	engine := workload.NewOffsetReqGenEngine(wl, 0)
	if err := ep.WaitReady(ctx); err != nil {
		log.Printf("tenant %d: endpoint not ready: %v", tenantIdx, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req := engine.MakeReq()
		start := time.Now()
		var err error
		if req.IsWrite() {
			err = ep.Set(ctx, req.Keys[0], *req.Val)
		} else {
			_, _, err = ep.Get(ctx, req.Keys[0])
		}
		ring.Record(float64(time.Since(start).Microseconds()))
		epochMgr.AddOps(1)
		if err != nil {
			log.Printf("tenant %d: request failed: %v", tenantIdx, err)
		}
	}
}

// runEpochTicker advances the epoch manager on a fixed tick, stopping
// the whole run early if a configured count/duration limit is hit.
func runEpochTicker(ctx context.Context, wg *sync.WaitGroup, epochMgr *epoch.Manager, epochDuration time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(epochDuration / 4)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if epochMgr.Refresh(time.Since(start).Seconds()) {
				log.Printf("epoch limit reached after %s, stopping", time.Since(start))
				return
			}
		}
	}
}

// runAllocationSchedule runs scheduleCount allocation rounds spaced
// scheduleInterval apart (or indefinitely if scheduleCount == 0),
// matching the stat/allocation/apply cycle of spec.md §4.K.
func runAllocationSchedule(ctx context.Context, wg *sync.WaitGroup, ctrl *controller.Controller, interval time.Duration, count int, statWindow, pollFreq, applyDeadline time.Duration) {
	defer wg.Done()

	round := 0
	for count == 0 || round < count {
		statTimer := time.NewTimer(interval - statWindow)
		select {
		case <-ctx.Done():
			statTimer.Stop()
			return
		case <-statTimer.C:
		}
		if err := ctrl.PollPrevSnapshots(ctx); err != nil {
			log.Printf("round %d: poll_prev failed: %v", round, err)
			continue
		}

		allocTimer := time.NewTimer(statWindow)
		select {
		case <-ctx.Done():
			allocTimer.Stop()
			return
		case <-allocTimer.C:
		}
		ready, err := ctrl.PollPostSnapshots(ctx)
		if err != nil {
			log.Printf("round %d: poll_post failed: %v", round, err)
			round++
			continue
		}
		if !ready {
			log.Printf("round %d: NA (no progress observed)", round)
			round++
			continue
		}

		result, err := ctrl.RunAllocation()
		if err != nil {
			log.Printf("round %d: allocation failed: %v", round, err)
			round++
			continue
		}
		log.Printf("round %d: improve_ratio=%g", round, result.ImproveRatio)

		ddl := time.Now().Add(applyDeadline)
		switch ctrl.Mode {
		case controller.ModeDirect:
			if _, err := ctrl.ApplyDirect(ctx, result); err != nil {
				log.Printf("round %d: apply failed: %v", round, err)
			}
		case controller.ModeBoost:
			if _, err := ctrl.ApplyBoost(ctx, result, pollFreq, time.Time{}, ddl); err != nil {
				log.Printf("round %d: boost apply failed: %v", round, err)
			}
		case controller.ModeGradual:
			if _, err := ctrl.ApplyGradual(ctx, result, pollFreq, time.Time{}, ddl); err != nil {
				log.Printf("round %d: gradual apply failed: %v", round, err)
			}
		}
		round++
	}
}
