package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gopherkern/kernel/mem"
	"gopherkern/kernel/mem/physical"
)

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Show the page metadata table placement and free list sizes",
		Long: `The layout command boots the allocator and reports where the paged
region and the page metadata table were placed, followed by the number of free
blocks per order.

Example:
  buddyctl layout --mem-mb 64
  buddyctl layout --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout()
		},
	}
}

type layoutReport struct {
	MemStart    uintptr  `json:"mem_start"`
	MemEnd      uintptr  `json:"mem_end"`
	PagingStart uintptr  `json:"paging_start"`
	PagingEnd   uintptr  `json:"paging_end"`
	TableStart  uintptr  `json:"table_start"`
	PageCount   uint32   `json:"page_count"`
	TopGroups   uint32   `json:"top_order_groups"`
	FreePages   uint32   `json:"free_pages"`
	FreeBlocks  []uint32 `json:"free_blocks"`
}

func newLayoutReport(pages *physical.BuddyAllocator) layoutReport {
	layout := pages.Layout()
	report := layoutReport{
		MemStart:    layout.MemStart,
		MemEnd:      layout.MemEnd,
		PagingStart: layout.PagingStart,
		PagingEnd:   layout.PagingEnd,
		TableStart:  layout.TableStart,
		PageCount:   layout.PageCount,
		TopGroups:   layout.TopOrderGroups(),
		FreePages:   pages.FreePageCount(),
	}

	for order := mem.PageOrder(0); order < mem.MaxPageOrder; order++ {
		report.FreeBlocks = append(report.FreeBlocks, pages.FreeBlockCount(order))
	}
	return report
}

func runLayout() error {
	sys, release, err := bootSystem(1)
	if err != nil {
		return err
	}
	defer release()

	report := newLayoutReport(sys.Pages)
	if jsonOut {
		return printJSON(report)
	}

	printInfo("Memory:        0x%x - 0x%x\n", report.MemStart, report.MemEnd)
	printInfo("Paged region:  0x%x - 0x%x (%d pages)\n", report.PagingStart, report.PagingEnd, report.PageCount)
	printInfo("Page table:    0x%x\n", report.TableStart)
	printInfo("Free pages:    %d\n", report.FreePages)
	printInfo("\nFree blocks:\n")
	for order, count := range report.FreeBlocks {
		printInfo("  order %d (%7s): %d\n", order, formatSize(mem.PageOrder(order).Size()), count)
	}

	return nil
}

func formatSize(size mem.Size) string {
	switch {
	case size >= mem.Mb && size%mem.Mb == 0:
		return fmt.Sprintf("%d MiB", size/mem.Mb)
	default:
		return fmt.Sprintf("%d KiB", size/mem.Kb)
	}
}
