// Command buddyctl boots the kernel memory and thread core on host memory
// and reports its state.
package main

func main() {
	execute()
}
