package policy

// Default returns the stock deny-list. Process spawning, raw sockets and
// nested interpreters are blocked at the module level; dynamic evaluation,
// raw file handles and console input are stubbed builtins; the os module
// stays importable with its process-control members individually stubbed.
func Default() *Policy {
	return New(
		[]Capability{
			"child_process",
			"net",
			"dgram",
			"tls",
			"http",
			"https",
			"cluster",
			"worker_threads",
			"vm",
			"repl",
		},
		[]Capability{
			"eval",
			"Function",
			"fs.open",
			"readline",
		},
		[]Capability{
			"os.exec",
			"os.kill",
			"os.fork",
			"os.setuid",
		},
	)
}
